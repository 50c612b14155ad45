package protohandler

import (
	"bytes"
	"fmt"
	"log/slog"
)

const (
	sceneRequestLen  = 21
	sceneResponseLen = 20
	sceneChecksumAdd = 0x5555
)

// sceneFixedBody is the 16-byte constant body at request offsets 2..17.
var sceneFixedBody = []byte{0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x01, 0x00}

// sceneResponseBody is the 16-byte constant body of every response frame.
var sceneResponseBody = []byte{0x00, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x00, 0x00}

// SceneLoader implements the fixed 21-byte "scene loader" frame protocol
// (spec.md §4.3). It is deliberately bug-for-bug compatible: a checksum
// mismatch is logged but does not suppress the response.
type SceneLoader struct {
	log *slog.Logger
}

// NewSceneLoader constructs a SceneLoader handler. A nil log uses slog's
// default logger.
func NewSceneLoader(log *slog.Logger) *SceneLoader {
	if log == nil {
		log = slog.Default()
	}
	return &SceneLoader{log: log}
}

func (h *SceneLoader) Kind() Kind { return KindSceneLoader }

func (h *SceneLoader) OnConnect(state *State) []byte { return nil }

func (h *SceneLoader) OnDisconnect(state *State) {}

func (h *SceneLoader) Handle(buf []byte, state *State) Result {
	if len(buf) < sceneRequestLen {
		return NeedMore()
	}

	if buf[0] != 0x55 || buf[1] != 0xAA {
		return Failed(sceneRequestLen, fmt.Errorf("scene_loader: bad header %02x%02x", buf[0], buf[1]))
	}
	if !bytes.Equal(buf[2:18], sceneFixedBody) {
		return Failed(sceneRequestLen, fmt.Errorf("scene_loader: unexpected fixed body"))
	}

	scene := buf[18]
	if scene > 9 {
		h.log.Warn("scene_loader: scene byte out of range", "scene", scene)
	}

	expected := sceneChecksum(buf[2:19])
	got := uint16(buf[19]) | uint16(buf[20])<<8
	if expected != got {
		h.log.Warn("scene_loader: checksum mismatch", "expected", expected, "got", got)
	}

	state.Values["current_scene"] = int(scene) + 1

	resp := make([]byte, sceneResponseLen)
	resp[0], resp[1] = 0xAA, 0x55
	copy(resp[2:18], sceneResponseBody)
	chk := sceneChecksum(sceneResponseBody)
	resp[18] = byte(chk)
	resp[19] = byte(chk >> 8)

	return Respond(sceneRequestLen, resp)
}

// sceneChecksum computes (sum of bytes) + 0x5555 truncated to 16 bits, the
// checksum formula shared by request validation and response framing.
func sceneChecksum(b []byte) uint16 {
	var sum uint32
	for _, v := range b {
		sum += uint32(v)
	}
	return uint16(sum + sceneChecksumAdd)
}
