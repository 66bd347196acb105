package hls

import (
	"fmt"
	"strings"
)

// Rendition 表示一个分辨率档位
type Rendition struct {
	Name      string // 例如 "720p"
	Width     int
	Height    int
	Bandwidth int // 主播放列表里声明的码率 (bps)
}

// Renditions 固定的档位集合，按画质升序排列。
// 转码和主播放列表生成都遵循这个顺序。
var Renditions = []Rendition{
	{Name: "480p", Width: 854, Height: 480, Bandwidth: 800000},
	{Name: "720p", Width: 1280, Height: 720, Bandwidth: 1400000},
	{Name: "1080p", Width: 1920, Height: 1080, Bandwidth: 2800000},
}

// RenditionByName looks up a rendition by its resolution label.
func RenditionByName(name string) (Rendition, bool) {
	for _, r := range Renditions {
		if r.Name == name {
			return r, true
		}
	}
	return Rendition{}, false
}

// Scale returns the ffmpeg scale filter argument, e.g. "854:480".
func (r Rendition) Scale() string {
	return fmt.Sprintf("%d:%d", r.Width, r.Height)
}

// Resolution returns the playlist resolution attribute, e.g. "854x480".
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MasterPlaylist renders the top-level variant playlist for the given renditions.
// 每个档位指向 {name}/index.m3u8
func MasterPlaylist(renditions []Rendition) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, r := range renditions {
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.Bandwidth, r.Resolution()))
		b.WriteString(r.Name + "/index.m3u8\n")
	}
	return b.String()
}
