// Package output 将提取出的题目记录写入文件
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"gopkg.in/yaml.v3"
)

// Format 输出格式
type Format string

const (
	FormatJSON Format = "json" // 单个JSON数组
	FormatYAML Format = "yaml" // 每条记录一个YAML文档
)

// ParseFormat 解析输出格式
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("无效的输出格式: %s (可选: json|yaml)", name)
	}
}

// Filename 按日期生成记录文件名, 例如 questions_250131.json
func Filename(format Format, day time.Time) string {
	return fmt.Sprintf("questions_%s.%s", day.Format("060102"), format)
}

// RecordWriter 流式写入记录
// 多个种子共享同一个文件, 可并发调用
type RecordWriter struct {
	mu     sync.Mutex
	path   string
	format Format
	file   *os.File
	buf    *bufio.Writer
	yaml   *yaml.Encoder
	count  int
	closed bool
}

// NewRecordWriter 在 baseDir 下创建当天的记录文件
// 同名文件已存在时追加序号, 不覆盖之前的输出
func NewRecordWriter(baseDir string, format Format, now time.Time) (*RecordWriter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	path, err := availablePath(baseDir, Filename(format, now))
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("创建记录文件失败: %w", err)
	}

	w := &RecordWriter{
		path:   path,
		format: format,
		file:   file,
		buf:    bufio.NewWriter(file),
	}
	switch format {
	case FormatYAML:
		w.yaml = yaml.NewEncoder(w.buf)
		w.yaml.SetIndent(2)
	default:
		if _, err := w.buf.WriteString("["); err != nil {
			file.Close()
			return nil, fmt.Errorf("写入记录文件失败: %w", err)
		}
	}

	utils.Infof("📝 记录输出文件: %s", path)
	return w, nil
}

func availablePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("检查记录文件失败: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

// Path 记录文件路径
func (w *RecordWriter) Path() string {
	return w.path
}

// Count 已写入的记录数
func (w *RecordWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Write 写入一条记录并刷新到磁盘
func (w *RecordWriter) Write(q *models.Question) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("记录文件已关闭")
	}

	switch w.format {
	case FormatYAML:
		if err := w.yaml.Encode(q); err != nil {
			return fmt.Errorf("序列化YAML失败: %w", err)
		}
	default:
		data, err := json.MarshalIndent(q, "  ", "  ")
		if err != nil {
			return fmt.Errorf("序列化JSON失败: %w", err)
		}
		sep := ",\n  "
		if w.count == 0 {
			sep = "\n  "
		}
		if _, err := w.buf.WriteString(sep); err != nil {
			return err
		}
		if _, err := w.buf.Write(data); err != nil {
			return err
		}
	}

	w.count++
	return w.buf.Flush()
}

// Close 结束文档并关闭文件, 重复调用无副作用
func (w *RecordWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	switch w.format {
	case FormatYAML:
		err = w.yaml.Close()
	default:
		if w.count > 0 {
			_, err = w.buf.WriteString("\n]\n")
		} else {
			_, err = w.buf.WriteString("]\n")
		}
	}
	if flushErr := w.buf.Flush(); err == nil {
		err = flushErr
	}
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("关闭记录文件失败: %w", err)
	}

	utils.Debugf("记录文件已关闭: %s (%d条)", w.path, w.count)
	return nil
}
