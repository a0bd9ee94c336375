package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Read and write .WAV files of 16 bit PCM.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

// WAVReader hands out mono 16 bit samples from any PCM .WAV.
// Only the first channel of a multi-channel file is used.
type WAVReader struct {
	w        *wav.Wav
	channels int
}

func NewWAVReader(r io.Reader) (*WAVReader, error) {
	var w, err = wav.New(r)
	if err != nil {
		return nil, wrapError(KindResource, "read wav", err)
	}
	if w.Header.NumChannels < 1 {
		return nil, wrapError(KindResource, "read wav", fmt.Errorf("%d channels", w.Header.NumChannels))
	}
	return &WAVReader{w: w, channels: int(w.Header.NumChannels)}, nil
}

func (r *WAVReader) SampleRate() int {
	return int(r.w.Header.SampleRate)
}

// Read returns up to n samples, io.EOF at the end.
func (r *WAVReader) Read(n int) ([]int16, error) {
	var f, err = r.w.ReadFloats(n * r.channels)
	if len(f) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	var out = make([]int16, 0, len(f)/r.channels)
	for i := 0; i < len(f); i += r.channels {
		var v = math.Round(float64(f[i]) * 32767)
		v = math.Max(-32768, math.Min(32767, v))
		out = append(out, int16(v))
	}
	return out, nil
}

// ReadWAV loads a whole file.
func ReadWAV(path string) ([]int16, int, error) {
	var f, err = os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var r, rerr = NewWAVReader(f)
	if rerr != nil {
		return nil, 0, rerr
	}

	var all []int16
	for {
		var s, err = r.Read(4096)
		all = append(all, s...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, wrapError(KindResource, "read wav", err)
		}
	}
	return all, r.SampleRate(), nil
}

type wav_header struct { /* .WAV file header. */
	riff            [4]byte /* "RIFF" */
	filesize        int32   /* file length - 8 */
	wave            [4]byte /* "WAVE" */
	fmt             [4]byte /* "fmt " */
	fmtsize         int32   /* 16. */
	wformattag      int16   /* 1 for PCM. */
	nchannels       int16   /* Always 1 here. */
	nsamplespersec  int32   /* sampling freq, Hz. */
	navgbytespersec int32   /* = nblockalign * nsamplespersec. */
	nblockalign     int16   /* = wbitspersample / 8 * nchannels. */
	wbitspersample  int16   /* Always 16 here. */
	data            [4]byte /* "data" */
	datasize        int32   /* number of bytes following. */
}

// WAVWriter writes mono 16 bit PCM.  The header is written with zero
// lengths and fixed up by Close.
type WAVWriter struct {
	out        io.WriteSeeker
	buf        *bufio.Writer
	header     wav_header
	byte_count int
}

func NewWAVWriter(out io.WriteSeeker, rate int) (*WAVWriter, error) {
	if rate <= 0 {
		return nil, configError("write wav", fmt.Errorf("invalid sample rate %d", rate))
	}

	var w = &WAVWriter{out: out}
	var h = &w.header
	copy(h.riff[:], "RIFF")
	copy(h.wave[:], "WAVE")
	copy(h.fmt[:], "fmt ")
	copy(h.data[:], "data")
	h.fmtsize = 16   // Always 16.
	h.wformattag = 1 // 1 for PCM.
	h.nchannels = 1
	h.nsamplespersec = int32(rate)
	h.wbitspersample = 16
	h.nblockalign = h.wbitspersample / 8 * h.nchannels
	h.navgbytespersec = int32(h.nblockalign) * h.nsamplespersec

	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return nil, wrapError(KindResource, "write wav", err)
	}
	w.buf = bufio.NewWriter(out)
	return w, nil
}

func (w *WAVWriter) PutSamples(samples []int16) error {
	if err := binary.Write(w.buf, binary.LittleEndian, samples); err != nil {
		return err
	}
	w.byte_count += 2 * len(samples)
	return nil
}

// Close fills in the lengths.  The underlying file is not closed.
func (w *WAVWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return wrapError(KindResource, "write wav", err)
	}

	w.header.filesize = int32(w.byte_count + binary.Size(w.header) - 8)
	w.header.datasize = int32(w.byte_count)

	if _, err := w.out.Seek(0, io.SeekStart); err != nil {
		return wrapError(KindResource, "write wav", err)
	}
	if err := binary.Write(w.out, binary.LittleEndian, &w.header); err != nil {
		return wrapError(KindResource, "write wav", err)
	}
	var _, err = w.out.Seek(0, io.SeekEnd)
	return err
}

// WriteWAV saves samples to a new file.
func WriteWAV(path string, rate int, samples []int16) error {
	var f, err = os.Create(path) //nolint:gosec // We expect to write to a user-supplied file from CLI
	if err != nil {
		return wrapError(KindResource, "write wav", err)
	}

	var w, werr = NewWAVWriter(f, rate)
	if werr != nil {
		f.Close()
		return werr
	}
	if err := w.PutSamples(samples); err != nil {
		f.Close()
		return wrapError(KindResource, "write wav", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
