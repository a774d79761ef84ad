package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/models"
)

// Event types emitted by the engine.
const (
	EventAudit       = "audit"
	EventRemediation = "remediation"
	EventDrift       = "drift"
	EventTest        = "test"
)

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
		}
	}
	return rawURL
}

// Internal notifications (DB).

func (s *NotificationService) Create(nType models.NotificationType, title, message string) (*models.Notification, error) {
	notification := &models.Notification{
		Type:    nType,
		Title:   title,
		Message: message,
		Read:    false,
	}
	result := s.DB.Create(notification)
	return notification, result.Error
}

func (s *NotificationService) List(unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Order("created_at desc")
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotificationService) MarkAsRead(id string) error {
	return s.DB.Model(&models.Notification{}).Where("id = ?", id).Update("read", true).Error
}

func (s *NotificationService) MarkAllAsRead() error {
	return s.DB.Model(&models.Notification{}).Where("read = ?", false).Update("read", true).Error
}

// External notifications (shoutrrr and custom webhooks).

func (s *NotificationService) SendExternal(eventType, title, message string, data map[string]interface{}) {
	var providers []models.NotificationProvider
	if err := s.DB.Where("enabled = ?", true).Find(&providers).Error; err != nil {
		logger.Log().WithError(err).Error("fetch notification providers")
		return
	}

	if data == nil {
		data = make(map[string]interface{})
	}
	data["Title"] = title
	data["Message"] = message
	data["Time"] = time.Now().Format(time.RFC3339)
	data["EventType"] = eventType

	for _, provider := range providers {
		shouldSend := false
		switch eventType {
		case EventAudit:
			shouldSend = provider.NotifyAudits
		case EventRemediation:
			shouldSend = provider.NotifyRemediations
		case EventDrift:
			shouldSend = provider.NotifyDrift
		case EventTest:
			shouldSend = true
		default:
			shouldSend = true
		}
		if !shouldSend {
			continue
		}

		go func(p models.NotificationProvider) {
			if p.Type == "webhook" {
				if err := s.sendCustomWebhook(p, data); err != nil {
					logger.Log().WithError(err).WithField("provider", p.Name).Error("send webhook")
				}
				return
			}
			url := normalizeURL(p.Type, p.URL)
			msg := fmt.Sprintf("%s\n\n%s", title, message)
			if err := shoutrrr.Send(url, msg); err != nil {
				logger.Log().WithError(err).WithField("provider", p.Name).Error("send notification")
			}
		}(provider)
	}
}

const minimalTemplate = `{"message": {{toJSON .Message}}, "title": {{toJSON .Title}}, "time": {{toJSON .Time}}, "event": {{toJSON .EventType}}}`
const detailedTemplate = `{"title": {{toJSON .Title}}, "message": {{toJSON .Message}}, "time": {{toJSON .Time}}, "event": {{toJSON .EventType}}, "data": {{toJSON .}}}`

func (s *NotificationService) sendCustomWebhook(p models.NotificationProvider, data map[string]interface{}) error {
	body, err := s.renderTemplate(p, data)
	if err != nil {
		return err
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequest(http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

// renderTemplate renders a provider template with the provided data and
// validates the produced JSON.
func (s *NotificationService) renderTemplate(p models.NotificationProvider, data map[string]interface{}) ([]byte, error) {
	tmplStr := p.Config
	switch strings.ToLower(strings.TrimSpace(p.Template)) {
	case "detailed":
		tmplStr = detailedTemplate
	case "minimal":
		tmplStr = minimalTemplate
	default:
		if tmplStr == "" {
			tmplStr = minimalTemplate
		}
	}

	tmpl, err := template.New("webhook").Funcs(template.FuncMap{
		"toJSON": func(v interface{}) string {
			b, _ := json.Marshal(v)
			return string(b)
		},
	}).Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("execute webhook template: %w", err)
	}

	var parsed interface{}
	if err := json.Unmarshal(body.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("rendered template is not valid JSON: %w", err)
	}
	return body.Bytes(), nil
}

func (s *NotificationService) TestProvider(provider models.NotificationProvider) error {
	if provider.Type == "webhook" {
		data := map[string]interface{}{
			"Title":     "Test Notification",
			"Message":   "This is a test notification from NetWarden",
			"Time":      time.Now().Format(time.RFC3339),
			"EventType": EventTest,
		}
		return s.sendCustomWebhook(provider, data)
	}
	url := normalizeURL(provider.Type, provider.URL)
	return shoutrrr.Send(url, "Test notification from NetWarden")
}

// Provider management.

func (s *NotificationService) ListProviders() ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	result := s.DB.Find(&providers)
	return providers, result.Error
}

func (s *NotificationService) CreateProvider(provider *models.NotificationProvider) error {
	if err := s.validateTemplate(provider); err != nil {
		return err
	}
	return s.DB.Create(provider).Error
}

func (s *NotificationService) UpdateProvider(provider *models.NotificationProvider) error {
	if err := s.validateTemplate(provider); err != nil {
		return err
	}
	return s.DB.Save(provider).Error
}

func (s *NotificationService) DeleteProvider(id string) error {
	return s.DB.Delete(&models.NotificationProvider{}, "id = ?", id).Error
}

func (s *NotificationService) validateTemplate(provider *models.NotificationProvider) error {
	if strings.ToLower(strings.TrimSpace(provider.Template)) != "custom" || strings.TrimSpace(provider.Config) == "" {
		return nil
	}
	payload := map[string]interface{}{"Title": "Preview", "Message": "Preview", "Time": time.Now().Format(time.RFC3339), "EventType": "preview"}
	if _, err := s.renderTemplate(*provider, payload); err != nil {
		return fmt.Errorf("invalid custom template: %w", err)
	}
	return nil
}
