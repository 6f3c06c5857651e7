package imageio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/cucumber/godog"
	"github.com/jpfielding/dcmimage.go/pkg/compress/rle"
	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// scenario holds state for a single scenario
type scenario struct {
	ds     *dicom.Dataset
	words  []uint16
	ts     transfer.Syntax
	reader *Reader
	img    image.Image
	err    error
}

func initializeScenario(sc *godog.ScenarioContext) {
	s := &scenario{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*s = scenario{ts: transfer.ExplicitVRLittleEndian}
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if s.reader != nil {
			s.reader.Dispose()
		}
		return ctx, nil
	})

	sc.Step(`^a (\d+)x(\d+) monochrome image with (\d+) of (\d+) bits stored$`, s.monochromeImage)
	sc.Step(`^sample i of the frame holds i modulo (\d+)$`, s.samplesCountUp)
	sc.Step(`^the image carries window center (\d+) and width (\d+)$`, s.storedWindow)
	sc.Step(`^a (\d+)x(\d+) RLE image declaring (\d+) frames with (\d+) fragments$`, s.rleImage)
	sc.Step(`^the image is bound as (stream|random access|metadata)$`, s.bind)
	sc.Step(`^frame (\d+) is read with window center (\d+) and width (\d+)$`, s.readWindowed)
	sc.Step(`^frame (\d+) is read$`, s.readImage)
	sc.Step(`^raster (\d+) is read$`, s.readRaster)
	sc.Step(`^pixel (\d+) is (\d+)$`, s.pixelIs)
	sc.Step(`^the read succeeds$`, s.readSucceeds)
	sc.Step(`^the read fails with (insufficient fragments|sequential access)$`, s.readFails)
	sc.Step(`^(\d+) frames were available$`, s.framesAvailable)
}

func (s *scenario) monochromeImage(cols, rows, stored, allocated int) error {
	s.ds = monoDataset(rows, cols, 1, allocated, stored)
	s.words = make([]uint16, rows*cols)
	return nil
}

func (s *scenario) samplesCountUp(modulo int) error {
	for i := range s.words {
		s.words[i] = uint16(i % modulo)
	}
	return nil
}

func (s *scenario) storedWindow(center, width int) error {
	s.ds.Set(tag.WindowCenter, vr.DS, float64(center)).
		Set(tag.WindowWidth, vr.DS, float64(width))
	return nil
}

func (s *scenario) rleImage(cols, rows, frames, fragments int) error {
	s.ds = monoDataset(rows, cols, frames, 16, 16)
	s.ts = transfer.RLELossless
	var frags [][]byte
	for f := 0; f < fragments; f++ {
		var buf bytes.Buffer
		words := ramp(100*f, rows*cols)
		if err := rle.EncodeFrame(&buf, wordBytes(binary.LittleEndian, words...), 1, 16); err != nil {
			return err
		}
		frags = append(frags, buf.Bytes())
	}
	withFragments(s.ds, nil, frags...)
	return nil
}

func (s *scenario) bind(how string) error {
	if s.words != nil {
		withNative(s.ds, vr.OW, wordBytes(binary.LittleEndian, s.words...))
	}
	var buf bytes.Buffer
	if _, err := dicom.Write(&buf, dicom.NewMetadata(s.ds, s.ts)); err != nil {
		return err
	}
	file := buf.Bytes()

	s.reader = NewReader()
	switch how {
	case "stream":
		s.reader.BindStream(onlyReader{bytes.NewReader(file)})
	case "random access":
		s.reader.BindRandomAccess(bytes.NewReader(file), int64(len(file)))
	default:
		meta, err := dicom.Parse(bytes.NewReader(file))
		if err != nil {
			return err
		}
		s.reader.BindMetadata(meta)
	}
	return nil
}

func (s *scenario) readWindowed(frame, center, width int) error {
	p := DefaultReadParam()
	p.WindowCenter, p.WindowWidth = float64(center), float64(width)
	s.img, s.err = s.reader.ReadImage(frame, p)
	return nil
}

func (s *scenario) readImage(frame int) error {
	s.img, s.err = s.reader.ReadImage(frame, nil)
	return nil
}

func (s *scenario) readRaster(frame int) error {
	_, s.err = s.reader.ReadRaster(frame, nil)
	return nil
}

func (s *scenario) pixelIs(i, want int) error {
	if s.err != nil {
		return s.err
	}
	gray, ok := s.img.(*image.Gray)
	if !ok {
		return fmt.Errorf("expected *image.Gray, got %T", s.img)
	}
	if got := int(gray.Pix[i]); got != want {
		return fmt.Errorf("pixel %d is %d, expected %d", i, got, want)
	}
	return nil
}

func (s *scenario) readSucceeds() error {
	return s.err
}

func (s *scenario) readFails(kind string) error {
	want := ErrInsufficientFragments
	if kind == "sequential access" {
		want = ErrSequentialAccessViolation
	}
	if !errors.Is(s.err, want) {
		return fmt.Errorf("expected %v, got %v", want, s.err)
	}
	return nil
}

func (s *scenario) framesAvailable(n int) error {
	var fragErr *InsufficientFragmentsError
	if !errors.As(s.err, &fragErr) {
		return fmt.Errorf("expected an InsufficientFragmentsError, got %v", s.err)
	}
	if fragErr.Available != n {
		return fmt.Errorf("%d frames available, expected %d", fragErr.Available, n)
	}
	return nil
}
