package crawlers

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// QuestionExtractor 从题目列表页提取记录和下一页地址
type QuestionExtractor struct{}

// NewQuestionExtractor 创建提取器
func NewQuestionExtractor() *QuestionExtractor {
	return &QuestionExtractor{}
}

// HasRobotGate 页面是否显示人机验证入口
func HasRobotGate(body []byte) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("解析HTML失败: %w", err)
	}
	return doc.Find(robotGateSelector).Length() > 0, nil
}

// Extract 提取页面上的所有题目
func (e *QuestionExtractor) Extract(pageURL string, body []byte) ([]*models.Question, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	cards, err := htmlquery.QueryAll(doc, LocatorQuestionList)
	if err != nil {
		return nil, fmt.Errorf("查询题目列表失败: %w", err)
	}

	questions := make([]*models.Question, 0, len(cards))
	for _, card := range cards {
		questions = append(questions, extractQuestion(pageURL, card))
	}
	return questions, nil
}

func extractQuestion(pageURL string, card *html.Node) *models.Question {
	q := models.NewQuestion(pageURL)
	q.Title = strings.Join(texts(card, questionTitle), " ")
	q.Topic = strings.Join(texts(card, questionTopic), " ")
	q.Text = strings.Join(texts(card, questionText), "\n")
	q.Answer = strings.Join(texts(card, questionAnswerLetter), "")
	q.AnswerComment = strings.Join(texts(card, questionAnswerComment), "\n")

	if counts := texts(card, questionCommentCount); len(counts) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(counts[0])); err == nil {
			q.CommentCount = n
		}
	}

	items, _ := htmlquery.QueryAll(card, questionChoices)
	for _, item := range items {
		letter := strings.TrimSuffix(strings.Join(texts(item, choiceLetter), ""), ".")
		if letter == "" {
			continue
		}
		q.Choices = append(q.Choices, models.Choice{
			Letter: letter,
			Text:   strings.Join(texts(item, choiceText), " "),
		})
	}
	return q
}

// texts 返回匹配节点的非空文本
func texts(node *html.Node, expr string) []string {
	nodes, err := htmlquery.QueryAll(node, expr)
	if err != nil {
		return nil
	}
	result := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s := strings.TrimSpace(htmlquery.InnerText(n)); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// NextPage 查找下一页链接并解析为绝对地址, 不存在时返回 false
func (e *QuestionExtractor) NextPage(pageURL string, body []byte) (string, bool, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("解析HTML失败: %w", err)
	}

	link, err := htmlquery.Query(doc, LocatorNextPage)
	if err != nil {
		return "", false, fmt.Errorf("查询下一页链接失败: %w", err)
	}
	if link == nil {
		return "", false, nil
	}

	href := strings.TrimSpace(htmlquery.SelectAttr(link, "href"))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false, fmt.Errorf("解析页面地址失败: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false, fmt.Errorf("解析下一页链接失败: %w", err)
	}
	return base.ResolveReference(ref).String(), true, nil
}
