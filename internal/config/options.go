// Package config holds the tunables the selector and load scheduler read
// each frame, wired up from CLI flags and environment via cobra/viper in
// internal/cmd.
package config

// FogTableEntry is one (eye height, fog density) sample of a monotone
// piecewise-linear table.
type FogTableEntry struct {
	Height  float64
	Density float64
}

// TilesetOptions are the selector/scheduler tunables, defaulted to the
// values the configuration contract documents.
type TilesetOptions struct {
	MaximumScreenSpaceError       float64
	MaximumSimultaneousTileLoads  int
	PreloadAncestors              bool
	PreloadSiblings               bool
	LoadingDescendantLimit        int
	ForbidHoles                   bool
	EnableFrustumCulling          bool
	EnableFogCulling              bool
	EnforceCulledScreenSpaceError bool
	CulledScreenSpaceError        float64
	MaximumCachedBytes            int64
	FogDensityTable               []FogTableEntry
	RenderTilesUnderCamera        bool
}

// DefaultTilesetOptions returns the documented defaults.
func DefaultTilesetOptions() TilesetOptions {
	return TilesetOptions{
		MaximumScreenSpaceError:       16,
		MaximumSimultaneousTileLoads:  20,
		PreloadAncestors:              true,
		PreloadSiblings:               true,
		LoadingDescendantLimit:        20,
		ForbidHoles:                   false,
		EnableFrustumCulling:          true,
		EnableFogCulling:              true,
		EnforceCulledScreenSpaceError: true,
		CulledScreenSpaceError:        64,
		MaximumCachedBytes:            512 * 1024 * 1024,
		FogDensityTable:               defaultFogDensityTable(),
		RenderTilesUnderCamera:        true,
	}
}

// defaultFogDensityTable is a gentle monotone falloff: negligible fog at
// ground level, rising with altitude, matching the kind of table a
// Cesium-style viewer ships out of the box.
func defaultFogDensityTable() []FogTableEntry {
	return []FogTableEntry{
		{Height: 0, Density: 0.00002},
		{Height: 1000, Density: 0.00015},
		{Height: 10000, Density: 0.0003},
		{Height: 50000, Density: 0.0006},
		{Height: 200000, Density: 0.0012},
	}
}

// FogDensityAt interpolates the table at the given eye height, clamping to
// the table's ends outside its range. An empty table means no attenuation.
func FogDensityAt(table []FogTableEntry, height float64) float64 {
	if len(table) == 0 {
		return 0
	}
	if height <= table[0].Height {
		return table[0].Density
	}
	last := table[len(table)-1]
	if height >= last.Height {
		return last.Density
	}
	for i := 1; i < len(table); i++ {
		if height <= table[i].Height {
			prev := table[i-1]
			cur := table[i]
			t := (height - prev.Height) / (cur.Height - prev.Height)
			return prev.Density + t*(cur.Density-prev.Density)
		}
	}
	return last.Density
}
