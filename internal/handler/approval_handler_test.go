package handler

import (
	"strings"
	"testing"

	"gotrip-be/internal/domain"
)

func TestValidateVoteRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *domain.VoteRequest
		wantErr bool
		errMsg  string
	}{
		{
			name:    "agree vote",
			req:     &domain.VoteRequest{Vote: domain.VoteAgree},
			wantErr: false,
		},
		{
			name:    "request changes with comment",
			req:     &domain.VoteRequest{Vote: domain.VoteRequestChanges, Comment: "hotel is too far from the old town"},
			wantErr: false,
		},
		{
			name:    "unknown choice",
			req:     &domain.VoteRequest{Vote: "abstain"},
			wantErr: true,
			errMsg:  "vote must be",
		},
		{
			name:    "missing choice",
			req:     &domain.VoteRequest{},
			wantErr: true,
			errMsg:  "vote must be",
		},
		{
			name:    "comment too long",
			req:     &domain.VoteRequest{Vote: domain.VoteAgree, Comment: strings.Repeat("x", 501)},
			wantErr: true,
			errMsg:  "comment must be at most 500 characters",
		},
		{
			name:    "comment at the limit",
			req:     &domain.VoteRequest{Vote: domain.VoteAgree, Comment: strings.Repeat("x", 500)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateVoteRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateVoteRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateVoteRequest() error = %v, want message containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestGenerateETag(t *testing.T) {
	first := generateETag(map[string]string{"state": "editable"})
	second := generateETag(map[string]string{"state": "editable"})
	changed := generateETag(map[string]string{"state": "fixed"})

	if first != second {
		t.Errorf("generateETag() not stable: %s != %s", first, second)
	}
	if first == changed {
		t.Errorf("generateETag() identical for different content: %s", first)
	}
	if !strings.HasPrefix(first, `"`) || !strings.HasSuffix(first, `"`) {
		t.Errorf("generateETag() = %s, want a quoted value", first)
	}
}
