package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 一次运行的爬取报告
type CrawlReport struct {
	RunID     string        `json:"run_id"`
	Route     RouteStrategy `json:"route"`
	PageLimit int           `json:"page_limit"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 汇总
	TotalSeeds   int `json:"total_seeds"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	TotalPages   int `json:"total_pages"`
	TotalRecords int `json:"total_records"`

	Seeds      []SeedReport `json:"seeds"`
	OutputFile string       `json:"output_file"`
}

// SeedReport 单个种子的结果
type SeedReport struct {
	SeedURL      string     `json:"seed_url"`
	PagesVisited int        `json:"pages_visited"`
	Records      int        `json:"records"`
	StopReason   StopReason `json:"stop_reason"`
	Error        string     `json:"error,omitempty"`
	Duration     float64    `json:"duration"` // 秒
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
