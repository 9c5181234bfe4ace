package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	fieldDataType      = "data_type"
	fieldAIDescription = "ai_description"
)

// Column is a model column. Fields other than data_type and ai_description
// are kept verbatim in Extra and written back unchanged.
type Column struct {
	DataType      string
	AIDescription string
	Extra         map[string]json.RawMessage

	// rawDataType is the decoded data_type value when DataType is empty (null or "")
	rawDataType json.RawMessage
}

// MarshalJSON writes the passthrough fields plus data_type and, once set,
// ai_description. An empty data_type is written back as it was read and
// omitted when the input had none.
func (c *Column) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Extra)+2)
	for k, v := range c.Extra {
		out[k] = v
	}

	switch {
	case c.DataType != "":
		b, err := json.Marshal(c.DataType)
		if err != nil {
			return nil, err
		}
		out[fieldDataType] = b
	case c.rawDataType != nil:
		out[fieldDataType] = c.rawDataType
	}

	if c.AIDescription != "" {
		b, err := json.Marshal(c.AIDescription)
		if err != nil {
			return nil, err
		}
		out[fieldAIDescription] = b
	}

	return json.Marshal(out)
}

// UnmarshalJSON splits known fields from passthrough fields
func (c *Column) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Column{}
	if v, ok := raw[fieldDataType]; ok {
		// data_type is null for columns dbt could not type
		var dt *string
		if err := json.Unmarshal(v, &dt); err != nil {
			return fmt.Errorf("invalid %s: %w", fieldDataType, err)
		}
		if dt != nil {
			c.DataType = *dt
		}
		if c.DataType == "" {
			c.rawDataType = v
		}
		delete(raw, fieldDataType)
	}
	if v, ok := raw[fieldAIDescription]; ok {
		var desc *string
		if err := json.Unmarshal(v, &desc); err != nil {
			return fmt.Errorf("invalid %s: %w", fieldAIDescription, err)
		}
		if desc != nil {
			c.AIDescription = *desc
		}
		delete(raw, fieldAIDescription)
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// Columns is an insertion-ordered mapping of column name to column.
// A nil *Columns behaves as an empty mapping for reads.
type Columns struct {
	names  []string
	byName map[string]*Column
}

// NewColumns creates an empty column mapping
func NewColumns() *Columns {
	return &Columns{byName: make(map[string]*Column)}
}

// Set adds or replaces a column; replacing keeps the original position
func (c *Columns) Set(name string, col *Column) {
	if c.byName == nil {
		c.byName = make(map[string]*Column)
	}
	if _, exists := c.byName[name]; !exists {
		c.names = append(c.names, name)
	}
	c.byName[name] = col
}

// Get returns the named column
func (c *Columns) Get(name string) (*Column, bool) {
	if c == nil {
		return nil, false
	}
	col, ok := c.byName[name]
	return col, ok
}

// Names returns column names in insertion order
func (c *Columns) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of columns
func (c *Columns) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// MarshalJSON writes a JSON object whose keys keep insertion order
func (c *Columns) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.byName[name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode column %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping its key order
func (c *Columns) UnmarshalJSON(data []byte) error {
	cols := NewColumns()
	err := DecodeOrdered(data, func(name string, raw json.RawMessage) error {
		col := &Column{}
		if err := json.Unmarshal(raw, col); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		cols.Set(name, col)
		return nil
	})
	if err != nil {
		return err
	}
	*c = *cols
	return nil
}

