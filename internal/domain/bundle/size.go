package bundle

// SizeReport holds declared byte counts per artifact category.
type SizeReport struct {
	Libraries    int64 `json:"libraries" yaml:"libraries"`
	Natives      int64 `json:"natives" yaml:"natives"`
	MainArtifact int64 `json:"main_artifact" yaml:"main_artifact"`
	Assets       int64 `json:"assets" yaml:"assets"`
	ContentPacks int64 `json:"content_packs" yaml:"content_packs"`
	Total        int64 `json:"total" yaml:"total"`
}

// SizeReport derives the report from the declared sizes. Nothing is cached:
// every call walks the descriptor again.
func (d *Descriptor) SizeReport() SizeReport {
	var report SizeReport

	for _, library := range d.ClasspathLibraries() {
		report.Libraries += library.Size
	}

	for _, native := range d.NativeLibraries() {
		report.Natives += native.Size
	}

	if d.MainArtifact != nil {
		report.MainArtifact = d.MainArtifact.Size
	}

	for i := range d.Assets {
		report.Assets += d.Assets[i].Size
	}

	// Fall back to the index total when objects were not expanded.
	if report.Assets == 0 && d.AssetIndex != nil {
		report.Assets = d.AssetIndex.TotalSize
	}

	for i := range d.ContentPacks {
		report.ContentPacks += d.ContentPacks[i].Size
	}

	report.Total = report.Libraries + report.Natives + report.MainArtifact + report.Assets + report.ContentPacks

	return report
}
