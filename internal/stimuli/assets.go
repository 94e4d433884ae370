package stimuli

// Manifest lists the files the browser should preload before the first trial.
type Manifest struct {
	Images []string `json:"images"`
	Audio  []string `json:"audio"`
}

// BuildManifest collects the distinct picture and audio URLs of all rows, plus
// the sound check file.
func BuildManifest(resolve Resolver, blocks ...[]Row) Manifest {
	if resolve == nil {
		resolve = URLResolver(DefaultBase)
	}
	var m Manifest
	seenImages := make(map[string]bool)
	seenAudio := make(map[string]bool)
	add := func(list *[]string, seen map[string]bool, url string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		*list = append(*list, url)
	}
	for _, rows := range blocks {
		for _, row := range rows {
			for _, field := range row.PictureFields() {
				add(&m.Images, seenImages, row.String(field))
			}
			add(&m.Audio, seenAudio, row.String("audio"))
		}
	}
	add(&m.Audio, seenAudio, resolve(SoundCheck))
	return m
}
