package provider

import (
	"encoding/json"
	"fmt"
)

// ThreeDState is the in-flight 3-D Secure scratch data of a transaction.
// Data is opaque outside the adapter named by Provider.
type ThreeDState struct {
	Provider string          `json:"provider"`
	Data     json.RawMessage `json:"data"`
}

// NewState tags v with the adapter id and serializes it
func NewState(adapterID string, v any) (*ThreeDState, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: encode 3-D state: %w", adapterID, err)
	}
	return &ThreeDState{Provider: adapterID, Data: raw}, nil
}

// Decode unmarshals the state into v. It refuses state written by another
// adapter.
func (st *ThreeDState) Decode(adapterID string, v any) error {
	if st == nil || len(st.Data) == 0 {
		return NewError(KindStateConflict, "NO_3D_STATE", "transaction has no 3-D Secure state")
	}
	if st.Provider != adapterID {
		return Errorf(KindStateConflict, "3-D state belongs to %q, not %q", st.Provider, adapterID)
	}
	if err := json.Unmarshal(st.Data, v); err != nil {
		return Wrap(KindInternal, err, "decode 3-D state")
	}
	return nil
}
