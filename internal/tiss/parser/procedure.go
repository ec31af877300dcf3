package parser

import (
	"github.com/farxc/tiss_wrapper/internal/tiss/types"
	"github.com/farxc/tiss_wrapper/internal/tiss/utils"
	"github.com/farxc/tiss_wrapper/internal/tiss/xmltree"
)

// expenseContainers are the grouped layouts some revisions use instead of
// outrasDespesas/despesa.
var expenseContainers = []struct {
	container string
	item      string
	origin    types.ExpenseOrigin
}{
	{"medicamentos", "medicamento", types.OriginMedication},
	{"materiais", "material", types.OriginMaterial},
	{"taxas", "taxa", types.OriginFee},
}

func parseProcedures(g *xmltree.Node) []types.Procedure {
	var nodes []*xmltree.Node
	for _, wrapper := range g.All("procedimentosExecutados") {
		nodes = append(nodes, wrapper.All("procedimentoExecutado")...)
	}

	procedures := make([]types.Procedure, 0, len(nodes))
	for _, n := range nodes {
		procedures = append(procedures, parseProcedure(n))
	}
	return procedures
}

func parseProcedure(n *xmltree.Node) types.Procedure {
	return types.Procedure{
		Sequence:      utils.ParseInt(n.TextAt("sequencialItem")),
		ExecutionDate: n.TextAt("dataExecucao"),
		StartTime:     n.TextAt("horaInicial"),
		EndTime:       n.TextAt("horaFinal"),
		Code:          parseProcedureCode(n.FindAny("procedimento", "procedimentos"), n),
		Quantity:      utils.ParseDecimal(n.FirstText("quantidadeExecutada", "quantidade")),
		AccessRoute:   n.TextAt("viaAcesso"),
		Technique:     n.TextAt("tecnicaUtilizada"),
		Multiplier:    utils.ParseMultiplier(n.TextAt("reducaoAcrescimo")),
		UnitPrice:     utils.ParseDecimal(n.TextAt("valorUnitario")),
		TotalPrice:    utils.ParseDecimal(n.TextAt("valorTotal")),
		Unit:          n.TextAt("unidadeMedida"),
		Team:          parseTeam(n),
	}
}

// parseProcedureCode reads the code triple from the procedimento block, falling
// back to the flat layout used inside servicosExecutados.
func parseProcedureCode(block, flat *xmltree.Node) types.ProcedureCode {
	if block != nil {
		return types.ProcedureCode{
			Table:       block.TextAt("codigoTabela"),
			Code:        block.TextAt("codigoProcedimento"),
			Description: block.TextAt("descricaoProcedimento"),
		}
	}
	return types.ProcedureCode{
		Table:       flat.TextAt("codigoTabela"),
		Code:        flat.FirstText("codigoProcedimento", "codigoItem"),
		Description: flat.FirstText("descricaoProcedimento", "descricao"),
	}
}

func parseTeam(n *xmltree.Node) []types.TeamMember {
	members := n.All("equipeSadt")
	if len(members) == 0 {
		members = n.Find("identificacaoEquipe").All("identEquipe")
	}
	if len(members) == 0 {
		return nil
	}

	team := make([]types.TeamMember, 0, len(members))
	for _, m := range members {
		member := types.TeamMember{
			Degree:       m.FirstText("grauPart", "grauParticipacao"),
			CPF:          m.FirstText("codProfissional/cpfContratado", "cpfContratado", "CPF"),
			ProviderCode: m.FirstText("codProfissional/codigoPrestadorNaOperadora", "codigoPrestadorNaOperadora"),
		}
		if p := parseProfessional(m); p != nil {
			member.Professional = *p
		}
		team = append(team, member)
	}
	return team
}

func parseExpenses(g *xmltree.Node) []types.Expense {
	var expenses []types.Expense

	for _, wrapper := range g.All("outrasDespesas") {
		for _, d := range wrapper.All("despesa") {
			expenses = append(expenses, parseExpense(d, types.OriginGeneric))
		}
		expenses = append(expenses, parseGrouped(wrapper)...)
	}
	expenses = append(expenses, parseGrouped(g)...)

	if expenses == nil {
		return []types.Expense{}
	}
	return expenses
}

func parseGrouped(parent *xmltree.Node) []types.Expense {
	var out []types.Expense
	for _, c := range expenseContainers {
		for _, wrapper := range parent.All(c.container) {
			for _, item := range wrapper.All(c.item) {
				out = append(out, parseExpense(item, c.origin))
			}
		}
	}
	return out
}

// parseExpense keeps codigoDespesa as sent. Classification happens at load time.
func parseExpense(d *xmltree.Node, origin types.ExpenseOrigin) types.Expense {
	exec := d.Child("servicosExecutados")
	if exec == nil {
		exec = d
	}

	return types.Expense{
		Sequence: utils.ParseInt(d.TextAt("sequencialItem")),
		Code:     d.TextAt("codigoDespesa"),
		Origin:   origin,
		Execution: types.ExpenseExecution{
			Date:            exec.TextAt("dataExecucao"),
			StartTime:       exec.TextAt("horaInicial"),
			EndTime:         exec.TextAt("horaFinal"),
			Code:            parseProcedureCode(exec.Child("procedimento"), exec),
			Quantity:        utils.ParseDecimal(exec.FirstText("quantidadeExecutada", "quantidade")),
			Unit:            exec.TextAt("unidadeMedida"),
			Multiplier:      utils.ParseMultiplier(exec.TextAt("reducaoAcrescimo")),
			UnitPrice:       utils.ParseDecimal(exec.TextAt("valorUnitario")),
			TotalPrice:      utils.ParseDecimal(exec.TextAt("valorTotal")),
			AnvisaRegistry:  exec.TextAt("registroANVISA"),
			ManufacturerRef: exec.TextAt("codigoRefFabricante"),
		},
	}
}
