package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// VideoSource reads from an OpenCV capture device and encodes JPEG.
type VideoSource struct {
	deviceID int
	mu       sync.Mutex
	webcam   *gocv.VideoCapture
	img      gocv.Mat
}

// OpenVideoSource opens the capture device with the given index.
func OpenVideoSource(deviceID int) (*VideoSource, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open capture device %d: %w", deviceID, err)
	}
	return &VideoSource{deviceID: deviceID, webcam: webcam, img: gocv.NewMat()}, nil
}

func (s *VideoSource) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.webcam == nil {
		return nil, ErrClosed
	}
	if ok := s.webcam.Read(&s.img); !ok || s.img.Empty() {
		return nil, fmt.Errorf("cannot read capture device: %d", s.deviceID)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func (s *VideoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.webcam == nil {
		return nil
	}
	err := s.webcam.Close()
	s.img.Close()
	s.webcam = nil
	return err
}
