// Package record defines the package and distribution records and turns
// loosely-typed input into their canonical form.
package record

type DeliveryType string

const (
	DeliveryOneEmail         DeliveryType = "Mail (One email)"
	DeliveryIndividualEmails DeliveryType = "Mail Individual Emails"
)

// Valid reports whether d is one of the recognized delivery types.
func (d DeliveryType) Valid() bool {
	return d == DeliveryOneEmail || d == DeliveryIndividualEmails
}

const (
	VisibilityEnabled  = "enabled"
	VisibilityDisabled = "disabled"

	DefaultEmailText = "Default"
)

type Package struct {
	ID                 int64               `json:"id" yaml:"id"`
	PackageName        string              `json:"packageName" yaml:"packageName"`
	DistributionGroup  string              `json:"distributionGroup" yaml:"distributionGroup"`
	DeliveryType       DeliveryType        `json:"deliveryType" yaml:"deliveryType"`
	EmailTitle         string              `json:"emailTitle" yaml:"emailTitle"`
	EmailMessage       string              `json:"emailMessage" yaml:"emailMessage"`
	FilePath           string              `json:"filePath" yaml:"filePath"`
	OutputFilename     string              `json:"outputFilename" yaml:"outputFilename"`
	AccessGroup        string              `json:"accessGroup" yaml:"accessGroup"`
	PackageEnabled     bool                `json:"packageEnabled" yaml:"packageEnabled"`
	Location           string              `json:"location" yaml:"location"`
	SuppliedParameters []SuppliedParameter `json:"suppliedParameters" yaml:"suppliedParameters"`
}

type Distribution struct {
	ID               int64              `json:"id" yaml:"id"`
	DistributionName string             `json:"distributionName" yaml:"distributionName"`
	IsPublic         string             `json:"isPublic" yaml:"isPublic"`
	Users            []DistributionUser `json:"users" yaml:"users"`
}

type DistributionUser struct {
	User           string `json:"user" yaml:"user"`
	AlternateEmail string `json:"alternateEmail" yaml:"alternateEmail"`
	Enabled        bool   `json:"enabled" yaml:"enabled"`
}

// Dataset is the full content of the service, both lists ascending by id.
type Dataset struct {
	Packages      []Package      `json:"packages" yaml:"packages"`
	Distributions []Distribution `json:"distributions" yaml:"distributions"`
}

// NewDataset returns an empty dataset whose lists encode as [] rather than null.
func NewDataset() *Dataset {
	return &Dataset{Packages: []Package{}, Distributions: []Distribution{}}
}
