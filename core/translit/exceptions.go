package translit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// builtinExceptions maps lower-case Latin spellings of Uzbek regions to
// their Cyrillic names. Alternate romanizations share one target.
var builtinExceptions = map[string]string{
	"andijon":          "Андижон",
	"buxoro":           "Бухоро",
	"jizzax":           "Жиззах",
	"jizzakh":          "Жиззах",
	"qashqadaryo":      "Қашқадарё",
	"qarshi":           "Қарши",
	"namangan":         "Наманган",
	"navoiy":           "Навоий",
	"samarqand":        "Самарқанд",
	"samarkand":        "Самарқанд",
	"sirdaryo":         "Сирдарё",
	"surxondaryo":      "Сурхондарё",
	"toshkent":         "Тошкент",
	"tashkent":         "Тошкент",
	"fargʻona":         "Фарғона",
	"farg'ona":         "Фарғона",
	"fargona":          "Фарғона",
	"fergana":          "Фарғона",
	"xorazm":           "Хоразм",
	"qoraqalpogʻiston": "Қорақалпоғистон",
	"qoraqalpogiston":  "Қорақалпоғистон",
}

// Exceptions returns a copy of the built-in exception table.
func Exceptions() map[string]string {
	out := make(map[string]string, len(builtinExceptions))
	for k, v := range builtinExceptions {
		out[k] = v
	}
	return out
}

// LoadExceptions reads extra exceptions from a YAML mapping of Latin
// spelling to canonical name. Keys are lower-cased.
func LoadExceptions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exceptions: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse exceptions: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			return nil, fmt.Errorf("parse exceptions: empty entry %q: %q", k, v)
		}
		out[k] = v
	}
	return out, nil
}
