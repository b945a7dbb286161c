package assistant

import (
	"bufio"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// textPartPrefix marks a text delta line in the data stream protocol: 0:"<json string>"\n
const textPartPrefix = "0:"

// WriteDelta writes one text delta as a data stream line.
func WriteDelta(w io.Writer, delta string) error {
	encoded, err := json.Marshal(delta)
	if err != nil {
		return errors.Wrap(err, "failed to encode delta")
	}

	line := make([]byte, 0, len(textPartPrefix)+len(encoded)+1)
	line = append(line, textPartPrefix...)
	line = append(line, encoded...)
	line = append(line, '\n')

	_, err = w.Write(line)
	return err
}

// ReadDataStream decodes a data stream into text deltas.
// Lines of other part types and undecodable lines are skipped.
func ReadDataStream(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, textPartPrefix) {
				continue
			}

			var delta string
			if err := json.Unmarshal([]byte(line[len(textPartPrefix):]), &delta); err != nil {
				zlog.Debug().Msgf("skipping malformed data stream line: line=%q error=%v", line, err)
				continue
			}

			if !yield(delta, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", errors.Wrap(err, "failed to read data stream"))
		}
	}
}

// Collect joins all deltas of seq. On error it returns the text received so far along with the error.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for delta, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(delta)
	}
	return b.String(), nil
}
