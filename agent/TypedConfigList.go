package agent

import (
	"encoding/json"
	"reflect"
)

// ConfigList represents a list of agent Configs. Instead of storing a
// slice of Configs, a ConfigList stores the values that each Config
// field can take, and the list is the cross product of all field
// values. A ConfigList is a more memory-efficient representation of
// a []Config for hyperparameter sweeps.
type ConfigList interface {
	// Config returns an empty Config of the same type as that stored
	// by the ConfigList
	Config() Config

	// Type returns the type of Config stored in the list
	Type() Type

	// Len returns the number of Config's in the list
	Len() int

	// NumFields returns the number of settable fields per Config in
	// the list
	NumFields() int
}

// ConfigAt returns the Config at index i of a ConfigList.
//
// Configs are ordered by the cross product of the ConfigList's fields,
// with earlier fields cycling fastest. Each exported slice field of
// the ConfigList must have a correspondingly named field in the
// Config.
func ConfigAt(i int, list ConfigList) Config {
	i = i % list.Len()

	config := list.Config()
	configValue := reflect.New(reflect.TypeOf(config)).Elem()
	listValue := reflect.ValueOf(list)

	for j := 0; j < listValue.NumField(); j++ {
		field := listValue.Field(j)
		if field.Kind() != reflect.Slice || field.Len() == 0 {
			continue
		}

		index := i % field.Len()
		i /= field.Len()

		target := configValue.FieldByName(listValue.Type().Field(j).Name)
		if !target.IsValid() || !target.CanSet() {
			continue
		}
		target.Set(field.Index(index))
	}

	return configValue.Interface().(Config)
}

// TypedConfigList implements functionality for typing a ConfigList.
// In this way, a ConfigList can explicitly have its type stored so
// that when deserializing the ConfigList, we can deserialize it into
// its concrete type without knowing beforehand or declaring beforehand
// a variable of its concrete type.
type TypedConfigList struct {
	Type
	ConfigList
}

// NewTypedConfigList types the argument ConfigList and returns it
// as a TypedConfigList which explicitly holds its Type.
func NewTypedConfigList(c ConfigList) TypedConfigList {
	return TypedConfigList{Type: c.Type(), ConfigList: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (j *TypedConfigList) UnmarshalJSON(data []byte) error {
	configs, typeName, err := unmarshalConfigList(
		data,
		"Type",
		"ConfigList")
	if err != nil {
		return err
	}

	j.Type = typeName
	j.ConfigList = configs

	return nil
}

// unmarshalConfigList uses reflection to unmarshall a ConfigList into
// its concrete type. Both the ConfigList and its Type are returned.
func unmarshalConfigList(data []byte, typeJsonField,
	valueJsonField string) (ConfigList, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName := Type(m[typeJsonField].(string))
	var value ConfigList
	if ty, found := registeredTypes[typeName]; found {
		value = reflect.New(ty).Interface().(ConfigList)
	}

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(ConfigList)

	return concreteValue, typeName, nil
}

// At returns the Config at index i in the TypedConfigList
func (t *TypedConfigList) At(i int) Config {
	return ConfigAt(i, t.ConfigList)
}
