package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/models"
	"wamirror/internal/notify"
	"wamirror/internal/store"
	"wamirror/internal/validation"
)

//go:embed send_schema.json
var sendSchemaJSON []byte

const sendSchemaURL = "send_schema.json"

// MessageService serves the chat API on top of the message store.
type MessageService interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, contactID string) ([]models.ThreadMessage, error)
	SendMessage(ctx context.Context, body []byte) (*models.Message, error)
}

type messageService struct {
	logger     *logrus.Logger
	store      store.Store
	notifier   notify.Notifier
	sendSchema *jsonschema.Schema
	now        func() time.Time
}

func NewMessageService(st store.Store, notifier notify.Notifier, logger *logrus.Logger) (MessageService, error) {
	schema, err := compileSendSchema()
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &messageService{
		logger:     logger,
		store:      st,
		notifier:   notifier,
		sendSchema: schema,
		now:        time.Now,
	}, nil
}

func compileSendSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(sendSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse send schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(sendSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load send schema: %w", err)
	}
	schema, err := c.Compile(sendSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile send schema: %w", err)
	}
	return schema, nil
}

func (s *messageService) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	return s.store.LatestPerContact(ctx)
}

// GetConversation returns the thread for contactID, oldest first.
func (s *messageService) GetConversation(ctx context.Context, contactID string) ([]models.ThreadMessage, error) {
	if err := validation.ValidateContactID(contactID); err != nil {
		return nil, err
	}

	msgs, err := s.store.FindByContact(ctx, contactID)
	if err != nil {
		return nil, err
	}

	thread := make([]models.ThreadMessage, 0, len(msgs))
	for _, msg := range msgs {
		thread = append(thread, msg.Thread())
	}
	return thread, nil
}

// SendMessage records an outbound message composed in the dashboard. Nothing
// is delivered to the network; the record only mirrors what the operator sent.
func (s *messageService) SendMessage(ctx context.Context, body []byte) (*models.Message, error) {
	req, err := s.decodeSendRequest(body)
	if err != nil {
		return nil, err
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = constants.GeneratedMessagePrefix + uuid.NewString()
	} else if err := validation.ValidateMessageID(messageID); err != nil {
		return nil, err
	}
	if err := validation.ValidateContactID(req.ContactID); err != nil {
		return nil, err
	}
	if err := validation.ValidateMessageText(req.Text); err != nil {
		return nil, err
	}
	if err := validation.ValidateContactName(req.ContactName); err != nil {
		return nil, err
	}

	contactName := req.ContactName
	if contactName == "" {
		contactName = constants.DefaultContactName
	}
	status := req.Status
	if status == "" {
		status = models.StatusSent
	}

	now := s.now().UTC()
	msg := &models.Message{
		MessageID:     messageID,
		ContactID:     models.StringPtr(req.ContactID),
		ContactName:   &contactName,
		Text:          models.StringPtr(req.Text),
		Timestamp:     &now,
		Direction:     models.DirectionOutbound,
		Status:        status,
		StatusHistory: []models.StatusEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, inserted, err := s.store.InsertIfAbsent(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, apperrors.NewConflictError("message", messageID)
	}

	LogWithContext(ctx, s.logger, logrus.Fields{
		LogFieldMessageID: stored.MessageID,
		LogFieldContactID: req.ContactID,
		LogFieldStatus:    stored.Status,
	}).Info("Recorded outbound message")

	if err := s.notifier.Notify(ctx, models.EventMessageCreated, stored); err != nil {
		apperrors.NewLogger(s.logger).LogWarn(err, "Failed to notify subscribers", logrus.Fields{LogFieldEvent: models.EventMessageCreated})
	}
	return stored, nil
}

func (s *messageService) decodeSendRequest(body []byte) (*models.SendRequest, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewMalformedPayloadError("api.send", err)
	}
	if err := s.sendSchema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, apperrors.NewValidationError(schemaField(verr), "wa_id and text are required strings")
		}
		return nil, apperrors.NewValidationError("body", err.Error())
	}

	var req models.SendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewMalformedPayloadError("api.send", err)
	}
	return &req, nil
}

// schemaField names the first property a validation error points at.
func schemaField(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	if len(verr.InstanceLocation) == 0 {
		return "body"
	}
	return strings.Join(verr.InstanceLocation, ".")
}
