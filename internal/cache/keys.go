package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// ElasticityKey identifies one cluster. Parts are lowercased so casing differences
// in upstream data share an entry.
func ElasticityKey(categoria, genero, marca, bandaPrecio string) string {
	parts := []string{categoria, genero, marca, bandaPrecio}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return "elasticity:" + strings.Join(parts, "|")
}
