package lead

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/model/lead"
)

// Captured 表示一条已接收的线索。
type Captured struct {
	ID string `json:"id"`
	lead.Submission
	CapturedAt time.Time `json:"capturedAt"`
}

// MockSink 模拟 CRM，记录日志并把线索保存在内存中。
type MockSink struct {
	mu       sync.RWMutex
	captured []Captured
	validate *validator.Validate
	logger   *zap.Logger
}

// NewMockSink 创建空的内存线索接收器。
func NewMockSink(logger *zap.Logger) *MockSink {
	return &MockSink{
		validate: validator.New(),
		logger:   logger.Named("lead"),
	}
}

// Submit 记录线索并返回确认文本。字段不会被拒绝，邮箱格式异常只记录告警日志。
func (s *MockSink) Submit(_ context.Context, sub lead.Submission) (string, error) {
	if err := s.validate.Struct(sub); err != nil {
		s.logger.Warn("lead submitted with questionable fields",
			zap.String("session", sub.SessionID),
			zap.Error(err))
	}

	record := Captured{
		ID:         uuid.NewString(),
		Submission: sub,
		CapturedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.captured = append(s.captured, record)
	s.mu.Unlock()

	s.logger.Info("lead captured",
		zap.String("id", record.ID),
		zap.String("session", sub.SessionID),
		zap.String("name", sub.Name),
		zap.String("email", sub.Email),
		zap.String("platform", sub.Platform))

	return fmt.Sprintf("Lead captured successfully: %s, %s, %s", sub.Name, sub.Email, sub.Platform), nil
}

// List 按提交顺序返回已收集的线索。
func (s *MockSink) List() []Captured {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Captured(nil), s.captured...)
}
