package rxrpc

import (
	"context"
	"io"
)

// Read from r into c and run d until it completes, fails, or ctx is
// canceled.  Each read asks for no more than the decoder needs, so
// bytes belonging to whatever follows the message stay in r.
func Receive(ctx context.Context, r io.Reader, c *Call, d Decoder) error {
	var buf []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := d.Decode(c)
		switch st.Result {
		case Complete:
			return nil
		case Failed:
			return st.Err
		}
		want := 4096
		if st.Need != AnySize {
			want = 1
			if avail := c.Available(); st.Need > avail {
				want = int(st.Need - avail)
			}
		}
		if cap(buf) < want {
			buf = make([]byte, want)
		}
		n, err := r.Read(buf[:want])
		c.Feed(buf[:n])
		if err == io.EOF && n == 0 {
			return io.ErrUnexpectedEOF
		} else if err != nil && err != io.EOF {
			return err
		}
	}
}
