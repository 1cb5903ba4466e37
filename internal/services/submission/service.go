package submission

import (
	"context"
	"sort"

	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/internal/services/signature"
	"formcapture/pkg/errors"
	"formcapture/pkg/imagex"
	"formcapture/pkg/logger"
	"formcapture/pkg/storage"
)

// Collaborator 接收提交内容的下游（存储 / 上游服务器）
type Collaborator interface {
	Deliver(ctx context.Context, pkg *storage.Package) (*storage.Receipt, error)
}

// Submission 一次提交
type Submission struct {
	FormID     string
	SessionID  string
	Definition *models.FormDefinition
	Values     map[string]string
	Manager    *attachment.Manager
	Surface    *signature.Surface
}

// Service 校验并交付表单
type Service struct {
	gate         *Gate
	collaborator Collaborator
}

func NewService(gate *Gate, collaborator Collaborator) *Service {
	return &Service{gate: gate, collaborator: collaborator}
}

// Gate 提交校验器
func (s *Service) Gate() *Gate {
	return s.gate
}

// Submit 校验通过后把附件、签名与字段值交给下游
// 交付成功后清空各字段的待提交附件
func (s *Service) Submit(ctx context.Context, sub *Submission) (*storage.Receipt, error) {
	if sub == nil || sub.Definition == nil || sub.Manager == nil {
		return nil, errors.New(errors.CodeInvalidParameter, "提交内容不完整")
	}

	// 校验、交付与清空之间不允许新的选择修改集合
	release, err := sub.Manager.BeginSubmit()
	if err != nil {
		return nil, err
	}
	defer release()

	inputs := sub.Manager.Inputs()
	signatures, err := s.gate.Check(&Form{
		Definition: sub.Definition,
		Values:     sub.Values,
		Inputs:     inputs,
		Surface:    sub.Surface,
	})
	if err != nil {
		if verr, ok := err.(*ValidationError); ok {
			logger.Info("表单 %s 校验未通过: %v", sub.FormID, verr.Labels(""))
			return nil, errors.New(errors.CodeValidationFailed, verr.Message()).WithDetails(verr.Problems)
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "提交校验失败")
	}

	pkg := &storage.Package{
		FormID:     sub.FormID,
		SessionID:  sub.SessionID,
		Values:     copyValues(sub.Values),
		Files:      make(map[string][]*imagex.File),
		Signatures: signatures,
		Signers:    make(map[string]storage.Signer),
	}
	for id, in := range inputs {
		for _, a := range in.Files {
			pkg.Files[id] = append(pkg.Files[id], a.File())
		}
	}
	if sub.Surface != nil {
		for _, c := range sub.Surface.Canvases() {
			info := c.Signer()
			if info == (models.SignerInfo{}) {
				continue
			}
			pkg.Signers[c.FieldID()] = storage.Signer{
				Name:     info.Name,
				Document: info.Document,
				Phone:    info.Phone,
				Company:  info.Company,
				Role:     info.Role,
			}
		}
	}

	receipt, err := s.collaborator.Deliver(ctx, pkg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeHandoffFailed, "表单交付失败")
	}

	drained := sub.Manager.Drain()
	logger.Info("表单 %s 已提交，附件字段 %v", sub.FormID, sortedFields(drained))
	return receipt, nil
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedFields(m map[string][]*models.Attachment) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
