package file_batch

// SourceConfig configures byte range splits over delimited text files.
type SourceConfig struct {
	InputGlob string `json:"inputglob"`
	SplitSize int64  `json:"splitsize"`
	Delimiter string `json:"delimiter"`
}

func (c *SourceConfig) WithDefaults() {
	if c.SplitSize <= 0 {
		c.SplitSize = 64 << 20
	}
	if c.Delimiter == "" {
		c.Delimiter = "\t"
	}
}

// SinkConfig configures one delimited output file per task.
type SinkConfig struct {
	OutputDir  string `json:"outputdir"`
	FilePrefix string `json:"fileprefix"`
	Delimiter  string `json:"delimiter"`
	Replace    bool   `json:"replace"`
}

func (c *SinkConfig) WithDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.FilePrefix == "" {
		c.FilePrefix = "part"
	}
	if c.Delimiter == "" {
		c.Delimiter = "\t"
	}
}
