package models

import "time"

// Choice 题目选项
type Choice struct {
	Letter string `json:"letter" yaml:"letter"`
	Text   string `json:"text" yaml:"text"`
}

// Question 从题目列表页提取的一条记录
type Question struct {
	ID            string    `json:"id" yaml:"id"`
	Title         string    `json:"title" yaml:"title"`
	Topic         string    `json:"topic" yaml:"topic"`
	Text          string    `json:"text" yaml:"text"`
	Choices       []Choice  `json:"choices" yaml:"choices"`
	Answer        string    `json:"answer" yaml:"answer"`
	AnswerComment string    `json:"answer_comment" yaml:"answer_comment"`
	CommentCount  int       `json:"comment_count" yaml:"comment_count"`
	PageURL       string    `json:"page_url" yaml:"page_url"`
	ScrapedAt     time.Time `json:"scraped_at" yaml:"scraped_at"`
}

// NewQuestion 创建带唯一ID的记录
func NewQuestion(pageURL string) *Question {
	return &Question{
		ID:        generateID(),
		PageURL:   pageURL,
		ScrapedAt: time.Now(),
	}
}

// ChoiceText 按字母查找选项内容
func (q *Question) ChoiceText(letter string) (string, bool) {
	for _, c := range q.Choices {
		if c.Letter == letter {
			return c.Text, true
		}
	}
	return "", false
}
