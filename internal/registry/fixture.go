package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadsync/internal/model"
)

// LoadDefinitionsFromFile reads a YAML or JSON list of custom field
// definitions. Entries without an id or data type are skipped.
func LoadDefinitionsFromFile(path string) ([]model.CustomFieldDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read definitions fixture")
	}

	var raw []model.CustomFieldDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal definitions fixture")
	}

	defs := make([]model.CustomFieldDefinition, 0, len(raw))
	for i, d := range raw {
		d.ExternalID = strings.TrimSpace(d.ExternalID)
		d.DataType = strings.TrimSpace(d.DataType)
		if d.ExternalID == "" || d.DataType == "" {
			zap.L().Warn("registry: skipping incomplete definition",
				zap.Int("index", i),
				zap.String("id", d.ExternalID),
				zap.String("data_type", d.DataType),
			)
			continue
		}
		if d.Name == "" {
			d.Name = d.ExternalID
		}
		defs = append(defs, d)
	}

	return defs, nil
}
