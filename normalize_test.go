package llmprovider

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize_MergesConsecutiveRoles(t *testing.T) {
	raw := []RawMessage{
		{Role: "user", Content: "hi"},
		{Role: "user", Content: "there"},
		{Role: "assistant", Content: "hello"},
	}

	got := Normalize(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(got), got)
	}
	if got[0].Role != RoleUser || got[0].Content != "hi\n\nthere" {
		t.Errorf("unexpected first message %+v", got[0])
	}
	if got[1].Role != RoleAssistant || got[1].Content != "hello" {
		t.Errorf("unexpected second message %+v", got[1])
	}
}

func TestNormalize_DropsUnknownRolesAndEmptyMessages(t *testing.T) {
	raw := []RawMessage{
		{Role: "system", Content: "ignored"},
		{Role: "Human", Content: "question"},
		{Role: "tool", Content: "ignored"},
		{Role: "assistant", Content: ""},
		{Role: "model", Content: nil},
		{Role: "AI", Content: "answer"},
	}

	got := Normalize(raw)
	want := []ProviderMessage{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), got)
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

type stringerContent struct{}

func (stringerContent) String() string { return "from stringer" }

func TestNormalize_FlattensContent(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}

	tests := []struct {
		name       string
		content    any
		wantText   string
		wantImages int
	}{
		{"string", "plain", "plain", 0},
		{"string slice", []string{"a", "", "b"}, "a\n\nb", 0},
		{"parts", []RawPart{{Type: "text", Text: "look"}, {Type: "image", Data: png, MimeType: "image/png"}}, "look", 1},
		{"image part without data", []RawPart{{Type: "text", Text: "x"}, {Type: "image"}}, "x", 0},
		{"stringer", stringerContent{}, "from stringer", 0},
		{"other", 42, "42", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]RawMessage{{Role: "user", Content: tt.content}})
			if len(got) != 1 {
				t.Fatalf("expected 1 message, got %+v", got)
			}
			if got[0].Content != tt.wantText {
				t.Errorf("Content = %q, want %q", got[0].Content, tt.wantText)
			}
			if len(got[0].Images) != tt.wantImages {
				t.Errorf("expected %d images, got %d", tt.wantImages, len(got[0].Images))
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := []RawMessage{
		{Role: "user", Content: "a"},
		{Role: "user", Content: "b", Images: []Image{{Data: []byte{1}, MimeType: "image/png"}}},
		{Role: "assistant", Content: "c", ToolUses: []ToolUseBlock{{ID: "t1", Name: "search"}}},
		{Role: "assistant", Content: "d"},
		{Role: "user", ToolResults: []ToolResultBlock{{ToolUseID: "t1", Content: "found"}}},
	}

	once := Normalize(raw)
	twice := NormalizeMessages(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalizing twice changed the result:\n%+v\n%+v", once, twice)
	}
	if err := ValidateAlternation(once); err != nil {
		t.Errorf("normalized history should alternate: %v", err)
	}
}

func TestMergeConsecutiveSameRole_DoesNotMutateInput(t *testing.T) {
	input := []ProviderMessage{
		{Role: RoleUser, Content: "a", Images: make([]Image, 1, 4)},
		{Role: RoleUser, Content: "b", Images: []Image{{MimeType: "image/jpeg"}}},
	}

	merged := MergeConsecutiveSameRole(input)
	if len(merged) != 1 || len(merged[0].Images) != 2 {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if input[0].Content != "a" || len(input[0].Images) != 1 {
		t.Errorf("input was modified: %+v", input[0])
	}
	if spare := input[0].Images[:2]; spare[1].MimeType != "" {
		t.Error("merge wrote into the caller's backing array")
	}
}

func TestValidateAlternation(t *testing.T) {
	tests := []struct {
		name      string
		messages  []ProviderMessage
		wantIndex int
		wantErr   bool
	}{
		{"valid", []ProviderMessage{{Role: RoleUser}, {Role: RoleAssistant}, {Role: RoleUser}}, 0, false},
		{"empty", nil, 0, true},
		{"starts with assistant", []ProviderMessage{{Role: RoleAssistant}}, 0, true},
		{"repeated user", []ProviderMessage{{Role: RoleUser}, {Role: RoleAssistant}, {Role: RoleAssistant}}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAlternation(tt.messages)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}

			var altErr *AlternationError
			if !errors.As(err, &altErr) {
				t.Fatalf("expected *AlternationError, got %v", err)
			}
			if altErr.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", altErr.Index, tt.wantIndex)
			}
			if !IsInvalidRequest(err) || IsFallbackable(err) {
				t.Error("alternation errors are fatal invalid requests")
			}
		})
	}
}

func TestToWireFormat_StrictDialect(t *testing.T) {
	messages := []ProviderMessage{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleUser, Content: "there"},
	}

	payload, err := ToWireFormat("be brief", messages, StrictDialect)
	if err != nil {
		t.Fatalf("ToWireFormat() error = %v", err)
	}
	if payload.System != "be brief" {
		t.Errorf("expected out-of-band system, got %q", payload.System)
	}
	if len(payload.Messages) != 1 {
		t.Fatalf("expected 1 merged message, got %d", len(payload.Messages))
	}
	parts := payload.Messages[0].Parts
	if len(parts) != 1 || parts[0].Kind != PartText || parts[0].Text != "hi\n\nthere" {
		t.Errorf("unexpected parts %+v", parts)
	}

	if _, err := ToWireFormat("", []ProviderMessage{{Role: RoleAssistant, Content: "x"}}, StrictDialect); !errors.Is(err, ErrAlternation) {
		t.Errorf("expected alternation error, got %v", err)
	}
}

func TestToWireFormat_TolerantDialect(t *testing.T) {
	dialect := Dialect{Name: "tolerant", UserRole: "user", AssistantRole: "model", InlineSystemPrompt: true}
	messages := []ProviderMessage{
		{Role: RoleAssistant, Content: "I start"},
		{Role: RoleUser, Content: "ok"},
	}

	payload, err := ToWireFormat("rules", messages, dialect)
	if err != nil {
		t.Fatalf("tolerant dialect must accept any order: %v", err)
	}
	if payload.Messages[0].Role != "model" {
		t.Errorf("expected assistant renamed to model, got %q", payload.Messages[0].Role)
	}
	first := payload.Messages[1].Parts
	if first[0].Text != "rules" || first[1].Text != "ok" {
		t.Errorf("expected system prompt inlined before user text, got %+v", first)
	}

	payload, _ = ToWireFormat("rules", []ProviderMessage{{Role: RoleAssistant, Content: "only"}}, dialect)
	if len(payload.Messages) != 2 || payload.Messages[0].Role != "user" || payload.Messages[0].Parts[0].Text != "rules" {
		t.Errorf("expected synthetic leading user turn, got %+v", payload.Messages)
	}
}

func TestToWireFormat_PartOrder(t *testing.T) {
	messages := []ProviderMessage{
		{Role: RoleUser, Content: "go"},
		{Role: RoleAssistant, Content: "calling", ToolUses: []ToolUseBlock{{ID: "t1", Name: "search"}}},
		{
			Role:        RoleUser,
			Content:     "and this",
			Images:      []Image{{Data: []byte{1}, MimeType: "image/png"}},
			ToolResults: []ToolResultBlock{{ToolUseID: "t1", Content: "done"}},
		},
	}

	payload, err := ToWireFormat("", messages, StrictDialect)
	if err != nil {
		t.Fatalf("ToWireFormat() error = %v", err)
	}

	assistant := payload.Messages[1].Parts
	if assistant[0].Kind != PartText || assistant[1].Kind != PartToolUse {
		t.Errorf("assistant parts out of order: %+v", assistant)
	}
	user := payload.Messages[2].Parts
	kinds := []PartKind{user[0].Kind, user[1].Kind, user[2].Kind}
	if !reflect.DeepEqual(kinds, []PartKind{PartToolResult, PartText, PartImage}) {
		t.Errorf("user parts out of order: %v", kinds)
	}
}
