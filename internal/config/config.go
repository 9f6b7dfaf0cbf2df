package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cozy-creator/vision-ai/internal/templates"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "VISIONAI"

type Config struct {
	Port               int                               `mapstructure:"port"`
	Host               string                            `mapstructure:"host"`
	Environment        string                            `mapstructure:"environment"`
	HomeDir            string                            `mapstructure:"home_dir"`
	ModelsDir          string                            `mapstructure:"models_dir"`
	OutputsDir         string                            `mapstructure:"outputs_dir"`
	LabelsDir          string                            `mapstructure:"labels_dir"`
	DataDir            string                            `mapstructure:"data_dir"`
	Workers            int                               `mapstructure:"workers"`
	ProgressInterval   time.Duration                     `mapstructure:"progress_interval"`
	OnnxRuntimeLib     string                            `mapstructure:"onnxruntime_lib"`
	OnnxRuntimeThreads int                               `mapstructure:"onnxruntime_threads"`
	Filesystem         string                            `mapstructure:"filesystem_type"`
	Detection          *DetectionConfig                  `mapstructure:"detection"`
	Species            *SpeciesConfig                    `mapstructure:"species"`
	Labels             *LabelsConfig                     `mapstructure:"labels"`
	Models             map[string]*types.ModelDescriptor `mapstructure:"models"`
	DB                 *DBConfig                         `mapstructure:"db"`
	S3                 *S3Config                         `mapstructure:"s3"`
}

type DetectionConfig struct {
	Threshold float32 `mapstructure:"threshold"`
}

type SpeciesConfig struct {
	NoMatchIndex int `mapstructure:"no_match_index"`
}

type LabelsConfig struct {
	Classification string `mapstructure:"classification"`
	Species        string `mapstructure:"species"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type S3Config struct {
	Folder    string `mapstructure:"folder"`
	Region    string `mapstructure:"region_name"`
	Bucket    string `mapstructure:"bucket_name"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint_url"`
	PublicUrl string `mapstructure:"public_url"`
}

var config *Config

func InitConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	viper.AutomaticEnv()

	home, err := getHome()
	if err != nil {
		return err
	}

	if err := createHomeDirs(home); err != nil {
		return err
	}

	viper.Set("home_dir", home)
	for _, sub := range []string{"models", "outputs", "labels", "data"} {
		dir, err := getSubdir(home, sub)
		if err != nil {
			return err
		}
		viper.Set(sub+"_dir", dir)
	}

	envFile := filepath.Join(home, ".env")
	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(home, "config.yaml")
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	SetDefaults()
	viper.SetConfigFile(configFile)

	if err := LoadConfig(true); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

// SetDefaults registers every default value with viper.
// Keys set here are also the ones AutomaticEnv can override during Unmarshal.
func SetDefaults() {
	viper.SetDefault("environment", "dev")
	viper.SetDefault("host", DefaultHost)
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("workers", DefaultWorkers)
	viper.SetDefault("progress_interval", DefaultProgressInterval)
	viper.SetDefault("onnxruntime_lib", "")
	viper.SetDefault("onnxruntime_threads", 0)
	viper.SetDefault("filesystem_type", FilesystemLocal)
	viper.SetDefault("detection.threshold", DefaultDetectionThreshold)
	viper.SetDefault("species.no_match_index", DefaultSpeciesNoMatchIndex)
	viper.SetDefault("labels.classification", DefaultClassificationLabels)
	viper.SetDefault("labels.species", DefaultSpeciesLabels)
	viper.SetDefault("db.dsn", "")

	for id, desc := range DefaultModels {
		prefix := "models." + string(id) + "."
		viper.SetDefault(prefix+"name", desc.Name)
		viper.SetDefault(prefix+"url", desc.URL)
		viper.SetDefault(prefix+"filename", desc.Filename)
		viper.SetDefault(prefix+"size", desc.SizeHint)
		viper.SetDefault(prefix+"checksum", desc.Checksum)
	}
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	config = cfg
	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// Descriptor returns the model descriptor configured for id.
func (c *Config) Descriptor(id types.PipelineID) (types.ModelDescriptor, error) {
	desc, ok := c.Models[string(id)]
	if !ok || desc == nil || desc.URL == "" || desc.Filename == "" {
		return types.ModelDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, id)
	}

	return *desc, nil
}

// LabelPath resolves a label file name against the labels directory.
// Absolute paths are returned unchanged.
func (c *Config) LabelPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(c.LabelsDir, name)
}

// Returns the vision-ai home directory path.
// It is taken from the `home_dir` flag, then the VISIONAI_HOME environment variable,
// then DefaultHome.
func getHome() (string, error) {
	home := viper.GetString("home_dir")
	if home == "" {
		home = os.Getenv(envPrefix + "_HOME")
		if home == "" {
			home = DefaultHome
		}
	}

	home, err := pathutil.ExpandPath(home)
	if err != nil {
		return "", fmt.Errorf("failed to expand home path: %w", err)
	}

	return home, nil
}

func getSubdir(home, name string) (string, error) {
	if home == "" {
		return "", ErrHomeNotSet
	}

	dir := viper.GetString(name + "_dir")
	if dir == "" {
		dir = filepath.Join(home, name)
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return dir, nil
}

func createHomeDirs(home string) error {
	if err := os.MkdirAll(home, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	for _, subdir := range []string{"models", "outputs", "labels", "data"} {
		dir := filepath.Join(home, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}
