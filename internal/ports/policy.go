package ports

type Policy struct {
	MaxQueueLen  int `yaml:"max_queue_len" json:"max_queue_len"`
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`

	OnQueueFull string `yaml:"on_queue_full" json:"on_queue_full"` // "block", "drop"
}
