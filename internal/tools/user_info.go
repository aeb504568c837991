package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"merchantama/internal/agent"
)

type userInfoArgs struct {
	UserID string `json:"userId" jsonschema:"description=The ID of the user to retrieve information for"`
}

// UserInfo looks up a user of the calling merchant. The directory is a
// fixed placeholder record.
type UserInfo struct {
	schema map[string]any
}

type userRecord struct {
	UserID     string `json:"userId"`
	MerchantID int64  `json:"merchantId,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

func NewUserInfo() (*UserInfo, error) {
	schema, err := agent.SchemaFor[userInfoArgs]()
	if err != nil {
		return nil, err
	}
	return &UserInfo{schema: schema}, nil
}

func (u *UserInfo) Name() string        { return "user_info" }
func (u *UserInfo) Description() string { return "Get information about the user" }
func (u *UserInfo) InputSchema() any    { return u.schema }

func (u *UserInfo) Execute(ctx context.Context, input string) (string, error) {
	var args userInfoArgs
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("parsing user_info input: %w", err)
	}
	if args.UserID == "" {
		return "", fmt.Errorf("userId is required")
	}

	rec := userRecord{
		UserID:     args.UserID,
		MerchantID: agent.MerchantIDFromContext(ctx),
		Name:       "John Doe",
		Email:      "john.doe@example.com",
	}
	slog.Debug("user_info: lookup", "user_id", rec.UserID, "merchant_id", rec.MerchantID)

	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
