package models

import "encoding/json"

// FlexString decodes a JSON string or number into its textual form. Clients
// send phoneNumber both ways; normalization downstream only cares about the
// digits.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// IdentifyRequest is the POST /identify payload. At least one identifier
// must normalize to a usable value; the service enforces that.
type IdentifyRequest struct {
	Email       string     `json:"email"`
	PhoneNumber FlexString `json:"phoneNumber"`
}

// IdentifyResponse wraps the consolidated cluster for the wire.
type IdentifyResponse struct {
	Contact ContactBundle `json:"contact"`
}
