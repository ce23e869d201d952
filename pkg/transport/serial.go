package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"
)

// SerialTransport talks to the wrapper over a real serial device.
type SerialTransport struct {
	port     string
	baudrate uint

	mu     sync.Mutex
	handle io.ReadWriteCloser
	reader *bufio.Reader
}

func NewSerialTransport(port string, baudrate uint) *SerialTransport {
	return &SerialTransport{port: port, baudrate: baudrate}
}

func (s *SerialTransport) Open() error {
	options := serial.OpenOptions{
		PortName:        s.port,
		BaudRate:        s.baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	handle, err := serial.Open(options)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.reader = bufio.NewReader(handle)
	s.mu.Unlock()
	logrus.Infof("Opened serial port %s at %d baud", s.port, s.baudrate)
	return nil
}

func (s *SerialTransport) ReadLine() (string, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return "", fmt.Errorf("serial port not connected")
	}
	return reader.ReadString('\n')
}

func (s *SerialTransport) WriteLine(line string) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return fmt.Errorf("serial port not connected")
	}
	_, err := handle.Write([]byte(line + "\n"))
	return err
}

func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	s.reader = nil
	return err
}

func (s *SerialTransport) Description() string {
	return fmt.Sprintf("serial:%s@%d", s.port, s.baudrate)
}
