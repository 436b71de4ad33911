package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raaihank/snapvault/internal/region"
)

// parseZones reads --zone values of the form x,y,w,h in source pixels
func parseZones(values []string) ([]region.Region, error) {
	zones := make([]region.Region, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("zone %q: want x,y,w,h", v)
		}
		var n [4]int
		for i, p := range parts {
			num, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("zone %q: %w", v, err)
			}
			n[i] = num
		}
		z := region.Region{X: n[0], Y: n[1], W: n[2], H: n[3]}
		if !z.Valid() {
			return nil, fmt.Errorf("zone %q: need x,y >= 0 and w,h > 0", v)
		}
		zones = append(zones, z)
	}
	return zones, nil
}
