package record

import "strings"

// NormalizePackage builds a canonical Package from raw input. It never fails:
// missing or malformed fields take their defaults.
func NormalizePackage(raw map[string]any) Package {
	return Package{
		ID:                 AsID(raw["id"]),
		PackageName:        strings.TrimSpace(stringOr(raw, "packageName", "")),
		DistributionGroup:  strings.TrimSpace(stringOr(raw, "distributionGroup", "")),
		DeliveryType:       DeliveryType(nonEmptyOr(raw, "deliveryType", string(DeliveryOneEmail))),
		EmailTitle:         nonEmptyOr(raw, "emailTitle", DefaultEmailText),
		EmailMessage:       nonEmptyOr(raw, "emailMessage", DefaultEmailText),
		FilePath:           stringOr(raw, "filePath", ""),
		OutputFilename:     stringOr(raw, "outputFilename", ""),
		AccessGroup:        stringOr(raw, "accessGroup", ""),
		PackageEnabled:     AsBool(raw["packageEnabled"]),
		Location:           stringOr(raw, "location", ""),
		SuppliedParameters: SuppliedParameters(),
	}
}

// NormalizeDistribution builds a canonical Distribution from raw input.
func NormalizeDistribution(raw map[string]any) Distribution {
	d := Distribution{
		ID:               AsID(raw["id"]),
		DistributionName: strings.TrimSpace(stringOr(raw, "distributionName", "")),
		IsPublic:         normalizeVisibility(raw["isPublic"]),
		Users:            []DistributionUser{},
	}

	list, ok := raw["users"].([]any)
	if !ok {
		return d
	}
	for _, item := range list {
		u, _ := item.(map[string]any)
		d.Users = append(d.Users, DistributionUser{
			User:           stringOr(u, "user", ""),
			AlternateEmail: stringOr(u, "alternateEmail", ""),
			Enabled:        AsBool(u["enabled"]),
		})
	}
	return d
}

func normalizeVisibility(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return VisibilityEnabled
		}
		return VisibilityDisabled
	}
	s, ok := AsString(v)
	if !ok || s == "" {
		return VisibilityEnabled
	}
	return s
}
