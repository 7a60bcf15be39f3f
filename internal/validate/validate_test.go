package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distribution-admin/internal/config"
	"distribution-admin/internal/record"
)

func TestValidatePackage(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr string
	}{
		{"valid minimal", map[string]any{"packageName": "Report A"}, ""},
		{"missing name", map[string]any{}, "packageName is required."},
		{"blank name", map[string]any{"packageName": "   "}, "packageName is required."},
		{"object name", map[string]any{"packageName": map[string]any{}}, "packageName is required."},
		{"numeric name", map[string]any{"packageName": float64(12)}, ""},
		{"known delivery type", map[string]any{"packageName": "a", "deliveryType": "Mail Individual Emails"}, ""},
		{"empty delivery type", map[string]any{"packageName": "a", "deliveryType": ""}, ""},
		{"null delivery type", map[string]any{"packageName": "a", "deliveryType": nil}, ""},
		{"unknown delivery type", map[string]any{"packageName": "a", "deliveryType": "Pigeon"}, "deliveryType must be"},
		{"wrong case delivery type", map[string]any{"packageName": "a", "deliveryType": "mail (one email)"}, "deliveryType must be"},
		{"non-string delivery type", map[string]any{"packageName": "a", "deliveryType": []any{}}, "deliveryType must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackage(tt.raw)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var verr *Error
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestValidateDistribution(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr string
	}{
		{"valid", map[string]any{"distributionName": "Finance"}, ""},
		{"missing name", map[string]any{"isPublic": "enabled"}, "distributionName is required."},
		{"blank name", map[string]any{"distributionName": " \t"}, "distributionName is required."},
		{"enabled", map[string]any{"distributionName": "a", "isPublic": "enabled"}, ""},
		{"disabled", map[string]any{"distributionName": "a", "isPublic": "disabled"}, ""},
		{"null visibility", map[string]any{"distributionName": "a", "isPublic": nil}, ""},
		{"bad visibility", map[string]any{"distributionName": "a", "isPublic": "public"}, "isPublic must be"},
		{"boolean visibility", map[string]any{"distributionName": "a", "isPublic": true}, "isPublic must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDistribution(tt.raw)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidator_PackageRules(t *testing.T) {
	v, err := New(config.RulesConfig{
		Packages: []config.RuleConfig{{
			Expression: "record.packageEnabled && record.filePath == ''",
			Message:    "enabled packages need a file path",
		}},
	})
	require.NoError(t, err)

	p := record.NormalizePackage(map[string]any{"packageName": "a", "packageEnabled": true})
	err = v.CheckPackage(p)
	require.Error(t, err)
	assert.Equal(t, "enabled packages need a file path", err.Error())

	p.FilePath = "/reports/a.pdf"
	assert.NoError(t, v.CheckPackage(p))
}

func TestValidator_DistributionRules(t *testing.T) {
	v, err := New(config.RulesConfig{
		Distributions: []config.RuleConfig{{Expression: "len(record.users) > 2"}},
	})
	require.NoError(t, err)

	d := record.NormalizeDistribution(map[string]any{
		"distributionName": "Ops",
		"users":            []any{map[string]any{}, map[string]any{}, map[string]any{}},
	})
	err = v.CheckDistribution(d)
	require.Error(t, err)
	assert.Equal(t, "Expression rule violated", err.Error())

	d.Users = d.Users[:1]
	assert.NoError(t, v.CheckDistribution(d))
}

func TestNew_RejectsBadExpression(t *testing.T) {
	_, err := New(config.RulesConfig{Packages: []config.RuleConfig{{Expression: "record.packageName =="}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.packages[0]")
}

func TestValidator_NilChecksPass(t *testing.T) {
	var v *Validator
	assert.NoError(t, v.CheckPackage(record.Package{}))
	assert.NoError(t, v.CheckDistribution(record.Distribution{}))
}
