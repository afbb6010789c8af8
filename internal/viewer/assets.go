package viewer

import (
	"fmt"
	"path"
	"strings"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/numerals"
)

// Asset is one stage of an announcement: a file to play, a phrase for the
// speech synthesizer, or an inline recorded clip.
type Asset struct {
	Path   string `json:"path,omitempty"`
	Speech string `json:"speech,omitempty"`
	Data   string `json:"data,omitempty"`
}

func (a Asset) String() string {
	switch {
	case a.Path != "":
		return a.Path
	case a.Speech != "":
		return "tts:" + a.Speech
	case a.Data != "":
		return "clip"
	}
	return "silence"
}

// AssetResolver maps call events onto the numbered audio files
// (ding.mp3, <n>.mp3, clinic<c>.mp3) and falls back to speech outside the
// ranges the files cover.
type AssetResolver struct {
	Base      string
	MaxNumber int
	MaxClinic int
}

func NewAssetResolver(base string, maxNumber, maxClinic int) AssetResolver {
	if base == "" {
		base = "audio"
	}
	if maxNumber <= 0 {
		maxNumber = 200
	}
	if maxClinic <= 0 {
		maxClinic = 20
	}
	return AssetResolver{Base: base, MaxNumber: maxNumber, MaxClinic: maxClinic}
}

func (r AssetResolver) file(name string) Asset {
	return Asset{Path: path.Join(r.Base, name)}
}

func (r AssetResolver) Tone() Asset {
	return r.file("ding.mp3")
}

func (r AssetResolver) Number(n int) Asset {
	if n >= 1 && n <= r.MaxNumber {
		return r.file(fmt.Sprintf("%d.mp3", n))
	}
	return Asset{Speech: "العميل رقم " + numerals.ToArabicIndic(n)}
}

func (r AssetResolver) Clinic(number int, name string) Asset {
	if number >= 1 && number <= r.MaxClinic {
		return r.file(fmt.Sprintf("clinic%d.mp3", number))
	}
	if name = strings.TrimSpace(name); name != "" {
		return Asset{Speech: "التوجه إلى " + name}
	}
	return Asset{Speech: "التوجه إلى عيادة " + numerals.ToArabicIndic(number)}
}

// Stages returns the announcement for ev in playback order. Skip events have
// nothing to say and return nil.
func (r AssetResolver) Stages(ev model.CallEvent) []Asset {
	switch ev.Type {
	case model.CallTypeNormal, model.CallTypeSpecific:
		return []Asset{r.Tone(), r.Number(ev.ClientNumber), r.Clinic(ev.ClinicNumber, ev.ClinicName)}
	case model.CallTypeTransfer:
		return []Asset{r.Tone(), r.Number(ev.ClientNumber), r.Clinic(ev.ToClinic, "")}
	case model.CallTypeByName:
		return []Asset{r.Tone(), {Speech: strings.TrimSpace(ev.ClientName)}, r.Clinic(ev.ClinicNumber, ev.ClinicName)}
	}
	return nil
}
