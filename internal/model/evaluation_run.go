package model

import "time"

// EvaluationRun stores the summary of one evaluation run. The full report
// lives in the JSON file named by ReportPath.
type EvaluationRun struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	RunID               string    `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	TotalQuestions      int       `json:"total_questions"`
	AvgRetrievalScore   float64   `json:"avg_retrieval_score"`
	AvgFaithfulness     float64   `json:"avg_faithfulness"`
	AvgAnswerRelevance  float64   `json:"avg_answer_relevance"`
	AvgKeywordCoverage  float64   `json:"avg_keyword_coverage"`
	AvgOverallScore     float64   `json:"avg_overall_score"`
	EdgeCaseSuccessRate float64   `json:"edge_case_success_rate"`
	ReportPath          string    `gorm:"size:512" json:"report_path"`
	CreatedAt           time.Time `json:"created_at"`
}
