package templates

import "os"

const configTemplate = `# vision-ai configuration
environment: dev
host: 127.0.0.1
port: 8881
workers: 3
progress_interval: 250ms

# Path to libonnxruntime; empty uses the platform default lookup.
onnxruntime_lib: ""
# Intra-op threads per session; 0 keeps the runtime default.
onnxruntime_threads: 0

filesystem_type: local

detection:
  threshold: 0.5

species:
  no_match_index: 2246

labels:
  classification: synset_words.txt
  species: spicesNet_labels_v401a.txtset

db:
  # sqlite file under the data directory when empty, postgres:// DSNs use pgdriver
  dsn: ""

# s3:
#   endpoint_url: ""
#   region_name: ""
#   bucket_name: ""
#   folder: "outputs"
#   public_url: ""
`

func GetConfigTemplate() string {
	return configTemplate
}

func WriteConfig(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(GetConfigTemplate())
	return err
}
