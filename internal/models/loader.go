package models

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ParseFormDefinition 解析单个 YAML 表单定义
func ParseFormDefinition(data []byte) (*FormDefinition, error) {
	var def FormDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, eris.Wrap(err, "models: parse form definition")
	}
	if strings.TrimSpace(def.ID) == "" {
		return nil, eris.New("models: form definition without id")
	}

	seen := make(map[string]bool, len(def.Fields))
	for i := range def.Fields {
		f := &def.Fields[i]
		if f.ID == "" {
			return nil, eris.Errorf("models: form %s field #%d without id", def.ID, i+1)
		}
		if seen[f.ID] {
			return nil, eris.Errorf("models: form %s duplicate field id %s", def.ID, f.ID)
		}
		seen[f.ID] = true
		if f.Type == "" {
			f.Type = FieldText
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			return nil, eris.Errorf("models: form %s select field %s without options", def.ID, f.ID)
		}
	}
	return &def, nil
}

// LoadFormDefinitions 读取目录下全部 .yaml/.yml 表单定义
func LoadFormDefinitions(dir string) (map[string]*FormDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "models: read forms dir %s", dir)
	}

	defs := make(map[string]*FormDefinition)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "models: read %s", e.Name())
		}
		def, err := ParseFormDefinition(data)
		if err != nil {
			return nil, eris.Wrapf(err, "models: %s", e.Name())
		}
		if _, dup := defs[def.ID]; dup {
			return nil, eris.Errorf("models: duplicate form id %s", def.ID)
		}
		defs[def.ID] = def
	}
	return defs, nil
}
