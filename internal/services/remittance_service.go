package services

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/models"
)

// RemittanceService exports ACH and wire deposits as ISO 20022 messages
// for reconciliation with the shop's bank.
type RemittanceService struct {
	details   *DepositDetailService
	validator *ValidationHelper
	bic       string
}

func NewRemittanceService(details *DepositDetailService) *RemittanceService {
	return &RemittanceService{
		details:   details,
		validator: NewValidationHelper(),
		bic:       "SUMMITST",
	}
}

// ExportRemittance builds a pacs.008 message for an ACH or wire deposit
// @Summary Export deposit remittance
// @Description Convert an ACH or wire deposit into a pacs.008 XML message
// @Tags remittance
// @Produce json
// @Param depositId path int true "Deposit ID"
// @Success 200 {object} object{status=string,messageType=string,xml=string}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deposits/{depositId}/remittance [get]
func (rs *RemittanceService) ExportRemittance(w http.ResponseWriter, r *http.Request) {
	depositID, err := strconv.ParseInt(chi.URLParam(r, "depositId"), 10, 64)
	if err != nil || depositID <= 0 {
		SendErrorResponse(w, "Invalid deposit ID", http.StatusBadRequest, nil)
		return
	}

	detail, err := rs.details.Load(r.Context(), depositID)
	if err != nil {
		SendErrorResponseCode(w, err.Error(), string(apperrors.KindOf(err)), apperrors.HTTPStatus(err), nil)
		return
	}

	if detail.PaymentMethod != models.PaymentMethodACH && detail.PaymentMethod != models.PaymentMethodWire {
		SendErrorResponse(w, "Remittance export only applies to ach and wire deposits", http.StatusBadRequest, nil)
		return
	}

	doc, err := rs.CreatePacs008(detail)
	if err != nil {
		log.Printf("[REMITTANCE] Failed to build pacs.008 for deposit %d: %v", depositID, err)
		SendErrorResponse(w, "Failed to build remittance message", http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := rs.ConvertToXML(doc)
	if err != nil {
		log.Printf("[REMITTANCE] Failed to marshal pacs.008 for deposit %d: %v", depositID, err)
		SendErrorResponse(w, "Failed to build remittance message", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "converted",
		"messageType": "pacs.008.001.08",
		"xml":         xmlData,
	})
}

// AcknowledgeRemittance records bank acknowledgment for a deposit
// @Summary Acknowledge deposit remittance
// @Description Build a pacs.002 status report acknowledging a remitted deposit
// @Tags remittance
// @Accept json
// @Produce json
// @Param request body object{depositId=int64,status=string} true "Acknowledgment request"
// @Success 200 {object} object{status=string,messageType=string,xml=string}
// @Failure 400 {object} ErrorResponse
// @Router /remittance/acknowledge [post]
func (rs *RemittanceService) AcknowledgeRemittance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DepositID int64  `json:"depositId" validate:"required,gt=0"`
		Status    string `json:"status" validate:"required,oneof=ACCP RJCT ACSC"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := rs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	detail, err := rs.details.Load(r.Context(), req.DepositID)
	if err != nil {
		SendErrorResponseCode(w, err.Error(), string(apperrors.KindOf(err)), apperrors.HTTPStatus(err), nil)
		return
	}

	doc, err := rs.CreatePacs002(detail, req.Status)
	if err != nil {
		log.Printf("[REMITTANCE] Failed to build pacs.002 for deposit %d: %v", req.DepositID, err)
		SendErrorResponse(w, "Failed to build status report", http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := rs.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, "Failed to build status report", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      req.Status,
		"messageType": "pacs.002.001.08",
		"xml":         xmlData,
	})
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer for a deposit.
func (rs *RemittanceService) CreatePacs008(detail *models.DepositDetail) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := detail.DepositDate
	amount := detail.TotalAmount.Round(2).InexactFloat64()

	reference := detail.ReferenceNumber
	if reference == "" {
		reference = fmt.Sprintf("DEP-%d", detail.ID)
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("USD"),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(reference)}[0],
					EndToEndId: common.Max35Text(reference),
					TxId:       &[]common.Max35Text{common.Max35Text(fmt.Sprintf("DEP-%d", detail.ID))}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("USD"),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(detail.CustomerName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(rs.bic)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("Summit Stairs & Millwork")}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds a pacs.002 payment status report for a deposit.
func (rs *RemittanceService) CreatePacs002(detail *models.DepositDetail, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	reference := detail.ReferenceNumber
	if reference == "" {
		reference = fmt.Sprintf("DEP-%d", detail.ID)
	}

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(reference)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(reference)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(fmt.Sprintf("DEP-%d", detail.ID))}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML renders an ISO 20022 document as an XML string.
func (rs *RemittanceService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
