package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Checkpoint 单个种子的断点
type Checkpoint struct {
	RunID   string `json:"run_id"`
	SeedURL string `json:"seed_url"`

	// 进度
	NextURL      string     `json:"next_url"`      // 下一次应处理的页面
	PagesVisited int        `json:"pages_visited"` // 已处理页数
	Records      int        `json:"records"`       // 已输出记录数
	Finished     bool       `json:"finished"`      // 种子已正常结束
	StopReason   StopReason `json:"stop_reason,omitempty"`
	LastError    string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckpoint 创建种子断点
func NewCheckpoint(runID, seedURL string) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		RunID:     runID,
		SeedURL:   seedURL,
		NextURL:   seedURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Record 记录一个已处理页面
func (c *Checkpoint) Record(state *CrawlState, outcome PageOutcome) {
	c.PagesVisited = state.PagesVisited
	c.Records += outcome.Records
	if outcome.Kind == OutcomeContinue {
		c.NextURL = outcome.NextURL
	}
	c.UpdatedAt = time.Now()
}

// CheckpointFilename 生成检查点文件名
func CheckpointFilename(seedURL string) string {
	sum := sha256.Sum256([]byte(seedURL))
	return fmt.Sprintf("checkpoint_%x.json", sum[:6])
}

// ToJSON 序列化为JSON
func (c *Checkpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *Checkpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 保存到文件
func (c *Checkpoint) SaveToFile(filepath string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadCheckpointFromFile 从文件加载
func LoadCheckpointFromFile(filepath string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, err
	}

	return &cp, nil
}
