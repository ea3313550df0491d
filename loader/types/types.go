package types

import "time"

// DoclingResponse is the part of a docling-serve conversion result we read.
type DoclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
	Status string   `json:"status"`
	Errors []string `json:"errors"`
}

// FileState is where a watched file goes once it has been handled.
type FileState int

const (
	FileArchived FileState = iota
	FileBad
)

type WatchConfig struct {
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	Collection     string
	MonitoringTime time.Duration // how long a file must stay unchanged
	PollInterval   time.Duration
}
