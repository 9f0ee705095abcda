package domain

// CollectionPrefix starts every collection identifier.
const CollectionPrefix = "pdf_"

// PipelineConfig holds chunking, retrieval, and summarization tunables.
type PipelineConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	TopK               int
	AnswerTemperature  float32
	SummaryTemperature float32
	SummaryMaxTokens   int
	SummaryMaxChars    int
}

// DefaultPipelineConfig returns the values the service ships with.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		TopK:               4,
		AnswerTemperature:  0,
		SummaryTemperature: 0.3,
		SummaryMaxTokens:   512,
		SummaryMaxChars:    6000,
	}
}
