package feature

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	feasttypes "github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/spotlightx/feedkit/core"
)

// FeastProvider 从 Feast 在线特征库读取预计算的用户兴趣向量。
// 特征缺失（冷用户）返回空向量；连接级错误上抛，由调用方决定是否降级。
type FeastProvider struct {
	client *feastsdk.GrpcClient

	// Project 是 Feast 项目名
	Project string
	// Feature 是嵌入特征的全名，默认 "user_profile:interest_embedding"
	Feature string
	// EntityKey 是实体列名，默认 "user_id"
	EntityKey string
}

// NewFeastProvider 连接 Feast Feature Server（gRPC，默认端口 6565）。
func NewFeastProvider(host string, port int, project string) (*FeastProvider, error) {
	if port == 0 {
		port = 6565
	}
	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("feast connect: %w", err)
	}
	return &FeastProvider{
		client:    client,
		Project:   project,
		Feature:   "user_profile:interest_embedding",
		EntityKey: "user_id",
	}, nil
}

func (p *FeastProvider) UserEmbedding(ctx context.Context, userID string) ([]float64, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: empty user id")
	}

	req := &feastsdk.OnlineFeaturesRequest{
		Features: []string{p.Feature},
		Entities: []feastsdk.Row{
			{p.EntityKey: feastsdk.StrVal(userID)},
		},
		Project: p.Project,
	}
	resp, err := p.client.GetOnlineFeatures(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feast get online features: %w", err)
	}

	rows := resp.Rows()
	if len(rows) == 0 {
		return nil, nil
	}
	val, ok := rows[0][p.Feature]
	if !ok || val == nil {
		return nil, nil
	}
	return doubleList(val), nil
}

// doubleList 提取向量值，兼容 double/float 两种列表编码。
func doubleList(val *feasttypes.Value) []float64 {
	if dl := val.GetDoubleListVal(); dl != nil {
		return dl.GetVal()
	}
	if fl := val.GetFloatListVal(); fl != nil {
		out := make([]float64, len(fl.GetVal()))
		for i, v := range fl.GetVal() {
			out[i] = float64(v)
		}
		return out
	}
	return nil
}

var _ Provider = (*FeastProvider)(nil)
