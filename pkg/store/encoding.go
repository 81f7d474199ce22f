package store

import (
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/crater/pkg/model"
)

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

func unmarshalToolchain(data []byte) (model.ToolchainRef, error) {
	var t model.ToolchainRef
	if err := json.Unmarshal(data, &t); err != nil {
		return model.ToolchainRef{}, fmt.Errorf("unmarshal toolchain: %w", err)
	}
	return t, nil
}

func unmarshalPackage(data []byte) (model.PackageRef, error) {
	var p model.PackageRef
	if err := json.Unmarshal(data, &p); err != nil {
		return model.PackageRef{}, fmt.Errorf("unmarshal package: %w", err)
	}
	return p, nil
}

func unmarshalSelection(data []byte) (model.CrateSelection, error) {
	var c model.CrateSelection
	if err := json.Unmarshal(data, &c); err != nil {
		return model.CrateSelection{}, fmt.Errorf("unmarshal crate selection: %w", err)
	}
	return c, nil
}

func unmarshalStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	return s, nil
}
