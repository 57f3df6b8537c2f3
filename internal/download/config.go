package download

type Config struct {
	TempDir           string `yaml:"temp_dir" env:"TEMP_DIR"`
	DefaultResolution string `yaml:"default_resolution" env:"DEFAULT_RESOLUTION" env-default:"360p"`
	ParallelFetch     bool   `yaml:"parallel_fetch" env:"DOWNLOAD_PARALLEL_FETCH" env-default:"false"`
	MaxConcurrent     int    `yaml:"max_concurrent" env:"DOWNLOAD_MAX_CONCURRENT" env-default:"4"`
}
