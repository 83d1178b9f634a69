package handler

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"

	"obstaclecam/internal/config"
	"obstaclecam/internal/logger"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
	// depth cameras send PNG with depth in the alpha channel
	pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	pngFooter = []byte{'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}
)

const (
	// maxDatagram is the largest UDP payload.
	maxDatagram = 65507
	// maxFrameSize bounds a frame under reassembly.
	maxFrameSize = 8 << 20
)

// FrameHandler receives one complete encoded frame from a camera.
type FrameHandler func(camera string, frame []byte)

type pendingFrame struct {
	buf    bytes.Buffer
	footer []byte
}

// frameAssembler rebuilds JPEG or PNG frames from datagrams, one buffer per
// camera. A packet starting with a header resets the camera's buffer and a
// packet ending with the matching footer completes the frame. A frame that
// grows past limit is discarded.
type frameAssembler struct {
	frames    map[string]*pendingFrame
	limit     int
	oversized int
}

func newFrameAssembler() *frameAssembler {
	return &frameAssembler{frames: make(map[string]*pendingFrame), limit: maxFrameSize}
}

func (a *frameAssembler) feed(camera string, data []byte) ([]byte, bool) {
	p, ok := a.frames[camera]
	if !ok {
		p = &pendingFrame{}
		a.frames[camera] = p
	}

	switch {
	case bytes.HasPrefix(data, jpegHeader):
		p.buf.Reset()
		p.footer = jpegFooter
	case bytes.HasPrefix(data, pngHeader):
		p.buf.Reset()
		p.footer = pngFooter
	case p.buf.Len() == 0:
		// middle of a frame we never saw the start of
		return nil, false
	}

	if p.buf.Len()+len(data) > a.limit {
		a.oversized++
		p.buf.Reset()
		return nil, false
	}
	p.buf.Write(data)

	if !bytes.HasSuffix(data, p.footer) {
		return nil, false
	}
	fullFrame := make([]byte, p.buf.Len())
	copy(fullFrame, p.buf.Bytes())
	p.buf.Reset()
	return fullFrame, true
}

// cameraName maps a sender IP to its configured name.
func cameraName(cfg *config.Config, ip string) string {
	if name, exists := cfg.CameraNames[ip]; exists {
		return name
	}
	return "unknown_" + ip
}

// UDPCameraHandler listens for UDP packets from cameras, reconstructs JPEG
// and PNG frames and passes complete frames to handle. It returns when ctx is done.
func UDPCameraHandler(ctx context.Context, handle FrameHandler, logger *logger.Logger, cfg *config.Config) error {
	port := strconv.Itoa(cfg.CamerasPort)

	addr, err := net.ResolveUDPAddr("udp", ":"+port)
	if err != nil {
		logger.Error("Failed to resolve UDP address", "port", port, "error", err)
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Error("Failed to listen on UDP port", "port", port, "error", err)
		return err
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Info("UDP camera handler started", "port", port)
	return serveCameraPackets(ctx, conn, handle, logger, cfg)
}

func serveCameraPackets(ctx context.Context, conn *net.UDPConn, handle FrameHandler, logger *logger.Logger, cfg *config.Config) error {
	buffer := make([]byte, maxDatagram)
	assembler := newFrameAssembler()

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("UDP camera handler stopped")
				return nil
			}
			logger.Warning("Error reading UDP packet", "error", err)
			continue
		}

		camera := cameraName(cfg, remoteAddr.IP.String())
		oversized := assembler.oversized
		frame, ok := assembler.feed(camera, buffer[:n])
		if assembler.oversized > oversized {
			logger.Warning("Camera frame too large, discarded", "camera", camera, "limit", assembler.limit)
		}
		if ok {
			handle(camera, frame)
		}
	}
}
