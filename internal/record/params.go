package record

// SuppliedParameter is one entry of the fixed parameter template carried by
// every package.
type SuppliedParameter struct {
	Name         string `json:"name" yaml:"name"`
	LiteralValue string `json:"literalValue" yaml:"literalValue"`
}

var suppliedParameters = [...]SuppliedParameter{
	{Name: "param_Consol", LiteralValue: "USD"},
	{Name: "Param_Store_Entities", LiteralValue: "STORE_REG"},
	{Name: "Param_Time", LiteralValue: "|!Param_Time_Input!|"},
}

// SuppliedParameters returns a fresh copy of the template; callers may not
// alter the shared value.
func SuppliedParameters() []SuppliedParameter {
	out := make([]SuppliedParameter, len(suppliedParameters))
	copy(out, suppliedParameters[:])
	return out
}
