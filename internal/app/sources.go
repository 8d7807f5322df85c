package app

import "gopherai-kbqa/internal/retrieval"

const unknownFilename = "Unknown"

// Source is a cited document in an answer.
type Source struct {
	Filename       string  `json:"filename"`
	SourcePath     string  `json:"source"`
	FileType       string  `json:"file_type"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ExtractSources collapses results to one entry per filename, keeping the
// first occurrence and the retrieval order.
func ExtractSources(results []retrieval.Result) []Source {
	sources := make([]Source, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		filename := res.Metadata.Filename()
		if filename == "" {
			filename = unknownFilename
		}
		if _, ok := seen[filename]; ok {
			continue
		}
		seen[filename] = struct{}{}
		sources = append(sources, Source{
			Filename:       filename,
			SourcePath:     res.Metadata.Source(),
			FileType:       res.Metadata.FileType(),
			RelevanceScore: res.Score,
		})
	}
	return sources
}
