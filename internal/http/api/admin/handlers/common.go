package handlers

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// encodeSettings marshals a settings map into a JSON column value.
func encodeSettings(settings map[string]any) (datatypes.JSON, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
