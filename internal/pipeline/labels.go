package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LabelParser turns one raw line into a display label.
type LabelParser func(line string) string

// labelFile reads a newline-delimited label file on first use. A failed
// read is not cached, so the next call tries again.
type labelFile struct {
	path  string
	parse LabelParser

	mu     sync.Mutex
	labels []string
}

func newLabelFile(path string, parse LabelParser) *labelFile {
	return &labelFile{path: path, parse: parse}
}

func (l *labelFile) load() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.labels != nil {
		return l.labels, nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, &LabelError{Path: l.path, Err: err}
	}
	defer f.Close()

	labels := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if l.parse != nil {
			line = strings.TrimSpace(l.parse(line))
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LabelError{Path: l.path, Err: err}
	}

	l.labels = labels
	return l.labels, nil
}

func (l *labelFile) label(idx int) (string, error) {
	labels, err := l.load()
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(labels) {
		return "", &LabelError{Path: l.path, Err: fmt.Errorf("class %d out of range (%d labels)", idx, len(labels))}
	}

	return labels[idx], nil
}

// SynsetLabel keeps the text after the first space of "n01440764 tench, Tinca tinca".
func SynsetLabel(line string) string {
	if _, after, ok := strings.Cut(line, " "); ok {
		return after
	}

	return line
}

// SpeciesLabel strips a leading "<uuid>;" record id from a species label line.
func SpeciesLabel(line string) string {
	id, rest, ok := strings.Cut(line, ";")
	if !ok {
		return line
	}
	if _, err := uuid.Parse(id); err != nil {
		return line
	}

	return rest
}
