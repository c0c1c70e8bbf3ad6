package backend

import (
	"context"
	"testing"

	"github.com/go-dnnproc/dnnvf/tensor"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{"native", Native, false},
		{"tensorflow", TensorFlow, false},
		{"openvino", OpenVINO, false},
		{"bogus", 0, true},
	} {
		got, err := ParseVariant(tc.in)
		if tc.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestTensorFlowBackendIsSyncOnly(t *testing.T) {
	ctx := context.Background()
	b, err := New(TensorFlow)
	require.NoError(t, err)
	require.Equal(t, TensorFlow, b.Variant())

	m, err := b.Load(ctx, "unused.pb", "input_shape=1,1,4,4;output_shape=1,1,4,4")
	require.NoError(t, err)
	defer m.Close()
	require.False(t, m.SupportsAsync())

	err = m.ExecuteAsync(ctx, "in", tensor.Descriptor{}, "out", func(tensor.Descriptor, error) {})
	require.Error(t, err)
}

func TestOpenVINOBackendIdentityAsync(t *testing.T) {
	ctx := context.Background()
	b, err := New(OpenVINO)
	require.NoError(t, err)

	m, err := b.Load(ctx, "unused.xml", "input_shape=1,1,4,4;output_shape=1,1,4,4")
	require.NoError(t, err)
	defer m.Close()
	require.True(t, m.SupportsAsync())

	in := tensor.NewDescriptor(tensor.Float32, tensor.Shape{1, 1, 4, 4}, tensor.ChannelLast)
	for i := 0; i < 16; i++ {
		tensor.PutFloat32(in.Data, i*4, float32(i))
	}

	done := make(chan struct{})
	var out tensor.Descriptor
	var cbErr error
	err = m.ExecuteAsync(ctx, "in", in, "out", func(o tensor.Descriptor, e error) {
		out, cbErr = o, e
		close(done)
	})
	require.NoError(t, err)
	<-done
	require.NoError(t, cbErr)
	for i := 0; i < 16; i++ {
		require.InDelta(t, float32(i), tensor.GetFloat32(out.Data, i*4), 1e-4)
	}
}

func TestOpenVINOResizesUpscale(t *testing.T) {
	ctx := context.Background()
	b, _ := New(OpenVINO)
	m, err := b.Load(ctx, "unused.xml", "input_shape=1,1,2,2;output_shape=1,1,4,4")
	require.NoError(t, err)
	defer m.Close()

	in := tensor.NewDescriptor(tensor.Float32, tensor.Shape{1, 1, 2, 2}, tensor.ChannelLast)
	out, err := m.ExecuteSync(ctx, "in", in, "out")
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, 1, 4, 4}, out.Shape)
}
